package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clisession/clisession"
)

var interruptAfter time.Duration

var interruptCmd = &cobra.Command{
	Use:   "interrupt <prompt>",
	Short: "Send one prompt and cancel it after a delay, demonstrating mid-stream interrupt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := clisession.Open(openRaw())
		if err != nil {
			return err
		}
		defer sess.Stop()

		ctx, cancel := context.WithCancel(cmd.Context())
		timer := time.AfterFunc(interruptAfter, cancel)
		defer timer.Stop()

		for msg, err := range sess.Stream(ctx, args[0], queryOverrides()) {
			if err != nil {
				return err
			}
			printMessage(msg)
		}
		fmt.Println("sessionctl: stream ended")
		return nil
	},
}

func init() {
	interruptCmd.Flags().DurationVar(&interruptAfter, "after", 2*time.Second, "cancel the query after this delay")
}

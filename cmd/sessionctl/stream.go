package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clisession/clisession"
	"github.com/clisession/clisession/internal/message"
	"github.com/clisession/clisession/internal/session"
)

var streamCmd = &cobra.Command{
	Use:   "stream <prompt>",
	Short: "Send one prompt and print every message as it arrives",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := clisession.Open(openRaw())
		if err != nil {
			return err
		}
		defer sess.Stop()

		for msg, err := range sess.Stream(cmd.Context(), args[0], queryOverrides()) {
			if err != nil {
				return err
			}
			printMessage(msg)
			if msg.IsTerminal() && msg.IsError {
				return fmt.Errorf("sessionctl: cli reported error: %w",
					&session.ClaudeError{Subtype: msg.ResultSubtype, Message: msg.Result})
			}
		}
		return nil
	},
}

func printMessage(msg message.Message) {
	switch msg.Kind {
	case message.KindAssistant, message.KindUser:
		for _, block := range msg.Inner.Content {
			switch block.Type {
			case message.ContentBlockText:
				fmt.Println(block.Text)
			case message.ContentBlockToolUse:
				fmt.Printf("[tool_use] %s(%v)\n", block.ToolUseName, block.ToolUseInput)
			case message.ContentBlockToolResult:
				fmt.Printf("[tool_result] %s\n", block.ToolResultContent)
			}
		}
	case message.KindResult:
		fmt.Println(msg.Result)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clisession/clisession"
	"github.com/clisession/clisession/internal/session"
	"github.com/clisession/clisession/internal/transport"
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send one prompt and print the final result text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := clisession.Open(openRaw())
		if err != nil {
			return err
		}
		defer sess.Stop()

		text, err := sess.Send(cmd.Context(), args[0], queryOverrides())
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	},
}

// queryOverrides projects the persistent flags into per-query overrides,
// the same values openRaw folds into the construction-time option map;
// --model, --system-prompt and --permission-mode take effect on the call
// that first provisions the adapter (internal/session.ensureAdapter),
// while --resume travels in each query's input frame.
func queryOverrides() transport.QueryOptions {
	return transport.QueryOptions{
		Model:          model,
		SystemPrompt:   systemPrompt,
		PermissionMode: permissionMode,
		ResumeSessionID: resumeID,
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, session.ErrTimeout)
}

func isInterrupted(err error) bool {
	return errors.Is(err, session.ErrInterrupted)
}

func isCLIReportedError(err error) bool {
	var claudeErr *session.ClaudeError
	return errors.As(err, &claudeErr)
}

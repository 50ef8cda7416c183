package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clisession/clisession/internal/discover"
	"github.com/clisession/clisession/internal/options"
	"github.com/clisession/clisession/internal/protocol"
	"github.com/clisession/clisession/internal/transport"
)

const (
	exitSuccess          = 0
	exitCLINotFound      = 1
	exitCLIReportedError = 2
	exitTimeout          = 3
	exitInterrupted      = 4
	exitProtocolError    = 5
)

var (
	model          string
	permissionMode string
	systemPrompt   string
	resumeID       string
)

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Drive a vendor CLI session over its NDJSON protocol",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "override model for this query")
	rootCmd.PersistentFlags().StringVar(&permissionMode, "permission-mode", "", "override permission mode")
	rootCmd.PersistentFlags().StringVar(&systemPrompt, "system-prompt", "", "override system prompt")
	rootCmd.PersistentFlags().StringVar(&resumeID, "resume", "", "resume a prior session id")
	rootCmd.AddCommand(askCmd, streamCmd, interruptCmd)
}

// openRaw projects the persistent flags into the raw option map
// clisession.Open validates; CLI binary discovery itself happens inside
// Open via internal/discover.
func openRaw() options.Raw {
	raw := options.Raw{}
	if model != "" {
		raw["model"] = model
	}
	if permissionMode != "" {
		raw["permission_mode"] = permissionMode
	}
	if systemPrompt != "" {
		raw["system_prompt"] = systemPrompt
	}
	if resumeID != "" {
		raw["resume_session_id"] = resumeID
	}
	return raw
}

// exitCodeFor classifies an error from the clisession library into the
// exit codes a thin CLI entrypoint reports.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}

	var decodeErr *protocol.DecodeError
	var lineErr *protocol.LineDecodeError
	if errors.As(err, &decodeErr) || errors.As(err, &lineErr) {
		return exitProtocolError
	}
	if errors.Is(err, transport.ErrCLINotFound) || errors.Is(err, discover.ErrNotFound) {
		return exitCLINotFound
	}
	if isTimeout(err) {
		return exitTimeout
	}
	if isInterrupted(err) {
		return exitInterrupted
	}
	if isCLIReportedError(err) {
		return exitCLIReportedError
	}

	fmt.Fprintln(os.Stderr, "sessionctl:", err)
	return exitProtocolError
}

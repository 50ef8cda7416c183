// Package clisession is the caller-facing interface of a Session: Open,
// Send, Stream, Interrupt, SessionID, ClearSession, Health, Stop. It
// wires together internal/options (opaque validated config),
// internal/transport (the StdioAdapter over the vendor CLI), and
// internal/session (the supervised actor) behind a single top-level
// package.
package clisession

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clisession/clisession/internal/discover"
	"github.com/clisession/clisession/internal/message"
	"github.com/clisession/clisession/internal/options"
	"github.com/clisession/clisession/internal/session"
	"github.com/clisession/clisession/internal/stream"
	"github.com/clisession/clisession/internal/transport"
)

// Message and ContentBlock are re-exported so callers never need to
// import internal/message directly.
type (
	Message      = message.Message
	ContentBlock = message.ContentBlock
)

// MessageSeq is the lazy, two-valued iterator Stream returns.
type MessageSeq = stream.MessageSeq

// QueryOptions carries per-call overrides layered on top of the
// Session's construction-time options.
type QueryOptions = transport.QueryOptions

// RequestID identifies one in-flight Stream/Send call, for targeted
// Interrupt.
type RequestID = transport.RequestID

// Health reports the Adapter's current lifecycle state.
type Health = transport.Health

// Session is the caller-facing supervised session wrapping one CLI
// subprocess.
type Session struct {
	inner *session.Session
}

// Open validates raw, builds a StdioAdapter targeting the resolved CLI
// binary, and returns a Session that lazily starts it on first use.
// raw is the opaque, already-assembled option map (see
// internal/config for one way to build it).
func Open(raw options.Raw) (*Session, error) {
	merged, err := options.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("clisession: %w", err)
	}

	if merged.CLIPath == "" {
		// Best-effort: widen beyond plain PATH lookup (e.g. versioned
		// install directories). Discovery failure here is not fatal —
		// the Adapter still falls back to its own PATH lookup lazily
		// on first query and reports cli_not_found there.
		if path, err := discover.Find(discover.Options{BinaryName: "claude", SearchDirs: discoverySearchDirs()}); err == nil {
			merged.CLIPath = path
		}
	}

	cfg := merged.ToTransportConfig()
	queryTimeout := time.Duration(merged.QueryTimeoutSec) * time.Second

	newAdapter := func() transport.Adapter {
		return transport.NewStdioAdapter()
	}

	inner := session.Open(newAdapter, cfg, session.Options{QueryTimeout: queryTimeout})
	return &Session{inner: inner}, nil
}

// Send runs prompt to completion and returns the final assistant text.
func (s *Session) Send(ctx context.Context, prompt string, overrides QueryOptions) (string, error) {
	return s.inner.Send(ctx, prompt, overrides)
}

// Stream returns the lazy message sequence for prompt. Iteration stops
// after the terminal message or a terminal error.
func (s *Session) Stream(ctx context.Context, prompt string, overrides QueryOptions) MessageSeq {
	return s.inner.Stream(ctx, prompt, overrides)
}

// Interrupt cancels the request currently in flight on this Session;
// queued requests are unaffected.
func (s *Session) Interrupt() error {
	return s.inner.Interrupt()
}

// InterruptRequest cancels one in-flight request by id.
func (s *Session) InterruptRequest(id RequestID) error {
	return s.inner.InterruptRequest(id)
}

// SessionID returns the cached CLI resume id, if any has been observed.
func (s *Session) SessionID() (string, bool) {
	return s.inner.SessionID()
}

// ClearSession drops the cached resume id; the next query omits
// --resume.
func (s *Session) ClearSession() {
	s.inner.ClearSession()
}

// Health reports the Adapter's lifecycle state.
func (s *Session) Health() Health {
	return s.inner.Health()
}

// Stop tears down the Adapter and releases all resources. It is
// idempotent; after it, Send, Stream, Interrupt and InterruptRequest
// return an error and Health reports unhealthy.
func (s *Session) Stop() error {
	return s.inner.Stop()
}

// discoverySearchDirs returns the common versioned-install locations
// worth globbing when a plain PATH lookup comes up empty.
func discoverySearchDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".local", "share"),
		filepath.Join(home, ".nvm", "versions", "node"),
	}
}

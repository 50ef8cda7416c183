// Package transporttest implements TestAdapter: a programmable Adapter
// stub that produces scripted message sequences deterministically,
// smart-filling the boilerplate every hand-written scenario would
// otherwise repeat (a default System.Init, a default terminal Result,
// tool_use_id rewriting, uniform session_id).
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/clisession/clisession/internal/message"
	"github.com/clisession/clisession/internal/transport"
)

// Script produces the message sequence for one query, given the prompt
// and the per-query options the Session passed through.
type Script func(prompt string, opts transport.QueryOptions) []message.Message

// queuedQuery is one FIFO entry awaiting the single worker goroutine.
type queuedQuery struct {
	requestID transport.RequestID
	prompt    string
	opts      transport.QueryOptions
}

// TestAdapter is constructed per test and smart-fills whatever Script
// returns. Like StdioAdapter, it serializes queries through a single
// FIFO worker and reports EventKindStarted only when a query actually
// begins executing, so Session-level interrupt/timeout tests exercise
// the same in-flight-tracking semantics the real adapter does.
type TestAdapter struct {
	script     Script
	defaultSID string
	emitDelay  time.Duration
	events     chan transport.Event
	queue      chan queuedQuery
	stopCh     chan struct{}
	stopOnce   sync.Once

	mu          sync.Mutex
	currentReq  transport.RequestID
	interruptCh chan struct{}
}

// Option configures a TestAdapter at construction.
type Option func(*TestAdapter)

// WithStaticMessages is a convenience Option wrapping a fixed message
// list in a Script that ignores prompt/opts.
func WithStaticMessages(msgs ...message.Message) Option {
	return func(a *TestAdapter) {
		a.script = func(string, transport.QueryOptions) []message.Message { return msgs }
	}
}

// WithScript registers a prompt/opts-dependent message generator.
func WithScript(fn Script) Option {
	return func(a *TestAdapter) { a.script = fn }
}

// WithDefaultSessionID overrides the session id every message is
// uniformly rewritten to carry (default "test-session").
func WithDefaultSessionID(id string) Option {
	return func(a *TestAdapter) { a.defaultSID = id }
}

// WithEmitDelay overrides the trivial per-message delay (default 0).
func WithEmitDelay(d time.Duration) Option {
	return func(a *TestAdapter) { a.emitDelay = d }
}

// New constructs a TestAdapter. Without WithStaticMessages/WithScript,
// every query smart-fills to just {System.Init, Result}.
func New(opts ...Option) *TestAdapter {
	a := &TestAdapter{
		defaultSID: "test-session",
		events:     make(chan transport.Event, 64),
		queue:      make(chan queuedQuery, 256),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.script == nil {
		a.script = func(string, transport.QueryOptions) []message.Message { return nil }
	}
	return a
}

func (a *TestAdapter) Start(ctx context.Context, cfg transport.Config) (<-chan transport.Event, error) {
	a.events <- transport.Event{Kind: transport.EventKindStatus, Status: transport.StatusProvisioning}
	a.events <- transport.Event{Kind: transport.EventKindStatus, Status: transport.StatusReady}
	go a.run()
	return a.events, nil
}

// run is the single FIFO worker, mirroring StdioAdapter.run: only one
// query is ever in flight at a time, and the next one isn't dequeued
// until the current one finishes or is interrupted.
func (a *TestAdapter) run() {
	for {
		select {
		case q := <-a.queue:
			a.runQuery(q)
		case <-a.stopCh:
			return
		}
	}
}

func (a *TestAdapter) SendQuery(requestID transport.RequestID, prompt string, opts transport.QueryOptions) error {
	select {
	case a.queue <- queuedQuery{requestID: requestID, prompt: prompt, opts: opts}:
		return nil
	case <-a.stopCh:
		return transport.ErrAlreadyStopped
	}
}

func (a *TestAdapter) runQuery(q queuedQuery) {
	a.mu.Lock()
	a.currentReq = q.requestID
	interruptCh := make(chan struct{})
	a.interruptCh = interruptCh
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.currentReq = ""
		a.interruptCh = nil
		a.mu.Unlock()
	}()

	// Reported only now, when this query actually becomes the one in
	// flight, not back when SendQuery merely enqueued it.
	a.events <- transport.Event{Kind: transport.EventKindStarted, RequestID: q.requestID}

	msgs := smartFill(a.script(q.prompt, q.opts), a.sessionID(q.opts))
	for _, msg := range msgs {
		if a.emitDelay > 0 {
			select {
			case <-time.After(a.emitDelay):
			case <-interruptCh:
				a.events <- transport.Event{Kind: transport.EventKindDone, RequestID: q.requestID, DoneReason: transport.DoneCancelled}
				return
			}
		}
		select {
		case <-interruptCh:
			a.events <- transport.Event{Kind: transport.EventKindDone, RequestID: q.requestID, DoneReason: transport.DoneCancelled}
			return
		default:
		}
		a.events <- transport.Event{Kind: transport.EventKindMessage, RequestID: q.requestID, Message: msg}
	}
	a.events <- transport.Event{Kind: transport.EventKindDone, RequestID: q.requestID, DoneReason: transport.DoneCompleted}
}

func (a *TestAdapter) sessionID(opts transport.QueryOptions) string {
	if opts.ResumeSessionID != "" {
		return opts.ResumeSessionID
	}
	return a.defaultSID
}

// Interrupt cancels only the query currently executing, the same
// whatever's-in-flight-right-now semantics as StdioAdapter.Interrupt:
// it does not affect queries still waiting in the FIFO behind it.
func (a *TestAdapter) Interrupt() error {
	a.mu.Lock()
	ch := a.interruptCh
	a.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
	return nil
}

func (a *TestAdapter) Health() transport.Health { return transport.Healthy() }

func (a *TestAdapter) Stop() error {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		close(a.events)
	})
	return nil
}

// smartFill applies four rewrites, in order: prepend System.Init if
// missing, rewrite orphan tool_use_ids, overwrite session_id uniformly,
// append a default Result if missing.
func smartFill(msgs []message.Message, sessionID string) []message.Message {
	out := make([]message.Message, len(msgs))
	copy(out, msgs)

	if len(out) == 0 || out[0].Kind != message.KindSystemInit {
		init := message.Message{
			Kind:      message.KindSystemInit,
			SessionID: sessionID,
			Init: &message.SystemInit{
				Model:          "test-model",
				PermissionMode: message.PermissionModeDefault,
			},
		}
		out = append([]message.Message{init}, out...)
	}

	out = rewriteOrphanToolUseIDs(out)

	for i := range out {
		out[i].SessionID = sessionID
	}

	if len(out) == 0 || out[len(out)-1].Kind != message.KindResult {
		out = append(out, message.Message{
			Kind:      message.KindResult,
			SessionID: sessionID,
			Result:    concatenatedFinalText(out),
			IsError:   false,
		})
	}
	return out
}

func rewriteOrphanToolUseIDs(msgs []message.Message) []message.Message {
	var lastToolUseID string
	knownIDs := map[string]bool{}
	for i := range msgs {
		if msgs[i].Kind != message.KindAssistant && msgs[i].Kind != message.KindUser {
			continue
		}
		for j := range msgs[i].Inner.Content {
			block := &msgs[i].Inner.Content[j]
			switch block.Type {
			case message.ContentBlockToolUse:
				lastToolUseID = block.ToolUseID
				knownIDs[block.ToolUseID] = true
			case message.ContentBlockToolResult:
				if !knownIDs[block.ToolResultToolUseID] && lastToolUseID != "" {
					block.ToolResultToolUseID = lastToolUseID
				}
			}
		}
	}
	return msgs
}

func concatenatedFinalText(msgs []message.Message) string {
	text := ""
	for _, msg := range msgs {
		if msg.Kind != message.KindAssistant {
			continue
		}
		for _, block := range msg.Inner.Content {
			if block.Type == message.ContentBlockText {
				text += block.Text
			}
		}
	}
	return text
}

var _ transport.Adapter = (*TestAdapter)(nil)

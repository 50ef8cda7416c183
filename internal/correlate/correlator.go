// Package correlate implements the ToolCorrelator: a small state machine
// that pairs tool_use content blocks with their eventual tool_result,
// emitting a correlated ToolEvent to an optional callback.
package correlate

import (
	"time"

	"github.com/clisession/clisession/internal/message"
)

// ToolEvent is emitted once a ToolUse is matched with its ToolResult.
type ToolEvent struct {
	Name         string
	Input        map[string]any
	ToolUseID    string
	Result       string
	ResultBlocks []message.ContentBlock
	IsError      bool
	StartedAt    time.Time
	CompletedAt  time.Time
}

type pendingTool struct {
	name      string
	input     map[string]any
	startedAt time.Time
}

// Correlator tracks outstanding tool uses for one request (or, if shared
// deliberately across requests, for a whole session — the caller decides
// the scope by how many Correlators it constructs). It is not safe for
// concurrent use; it lives on the consumer side of a single per-request
// channel.
type Correlator struct {
	pending map[string]pendingTool
	onEvent func(ToolEvent)
	now     func() time.Time
}

// Option configures a Correlator at construction time.
type Option func(*Correlator)

// WithCallback registers a callback invoked synchronously for every
// correlated pair, in tool-result arrival order.
func WithCallback(fn func(ToolEvent)) Option {
	return func(c *Correlator) { c.onEvent = fn }
}

// withClock overrides the time source; used by tests.
func withClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// New constructs an empty Correlator.
func New(opts ...Option) *Correlator {
	c := &Correlator{pending: make(map[string]pendingTool), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe feeds one message through the correlator. Call it for every
// message delivered on the channel being correlated, in arrival order.
func (c *Correlator) Observe(msg message.Message) {
	switch msg.Kind {
	case message.KindAssistant:
		for _, block := range msg.Inner.Content {
			if block.Type != message.ContentBlockToolUse {
				continue
			}
			c.pending[block.ToolUseID] = pendingTool{
				name:      block.ToolUseName,
				input:     block.ToolUseInput,
				startedAt: c.now(),
			}
		}
	case message.KindUser:
		for _, block := range msg.Inner.Content {
			if block.Type != message.ContentBlockToolResult {
				continue
			}
			pending, ok := c.pending[block.ToolResultToolUseID]
			if !ok {
				// Orphan result: dropped by the correlator, still
				// visible to the consumer as an ordinary message.
				continue
			}
			delete(c.pending, block.ToolResultToolUseID)
			event := ToolEvent{
				Name:         pending.name,
				Input:        pending.input,
				ToolUseID:    block.ToolResultToolUseID,
				Result:       block.ToolResultContent,
				ResultBlocks: block.ToolResultBlocks,
				IsError:      block.ToolResultIsError,
				StartedAt:    pending.startedAt,
				CompletedAt:  c.now(),
			}
			if c.onEvent != nil {
				c.onEvent(event)
			}
		}
	case message.KindResult:
		// Terminal: purge to bound pending-map growth.
		c.pending = make(map[string]pendingTool)
	}
}

// Pending returns the number of tool uses awaiting a result. Exposed for
// tests asserting the pending map is purged on terminal.
func (c *Correlator) Pending() int {
	return len(c.pending)
}

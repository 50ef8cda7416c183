// Package transport defines the Adapter abstraction: the seam that lets
// the Session drive either a real CLI subprocess or a scripted test
// double. The default implementation lives in stdio.go.
package transport

import (
	"context"
	"time"

	"github.com/clisession/clisession/internal/message"
)

// RequestID is the opaque per-query identifier the Session mints and
// every subsequent Adapter event is addressed with.
type RequestID string

// Status is the Adapter's own lifecycle state, reported via Event.Status.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// DoneReason classifies why a request's channel is closing.
type DoneReason string

const (
	DoneCompleted DoneReason = "completed"
	DoneCancelled DoneReason = "cancelled"
	DoneError     DoneReason = "error"
)

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventKindMessage EventKind = "message"
	EventKindDone    EventKind = "done"
	EventKindError   EventKind = "error"
	EventKindStatus  EventKind = "status"
	// EventKindStarted marks the moment a queued query actually becomes
	// the one in flight at the adapter — e.g. the instant StdioAdapter
	// dequeues it from its internal FIFO and begins writing to the CLI's
	// stdin. SendQuery accepting a query only means it was enqueued; the
	// Session relies on this event, not SendQuery's return, to know
	// which request Interrupt() would actually reach.
	EventKindStarted EventKind = "started"
)

// Event is the one-way, addressed notification an Adapter sends to its
// Session. Message/Done/Error/Started events carry a RequestID; Status
// events are session-wide and RequestID is empty.
type Event struct {
	Kind       EventKind
	RequestID  RequestID
	Message    message.Message
	DoneReason DoneReason
	Err        error
	Status     Status
	StatusErr  error
}

// Health is the result of Adapter.Health.
type Health struct {
	State  string // healthy, degraded, unhealthy
	Reason string
}

func Healthy() Health                { return Health{State: "healthy"} }
func Degraded(reason string) Health  { return Health{State: "degraded", Reason: reason} }
func Unhealthy(reason string) Health { return Health{State: "unhealthy", Reason: reason} }

// Config configures one Adapter for the lifetime of its subprocess (or
// equivalent channel). Per-query overrides layer on top via QueryOptions.
type Config struct {
	CLIPath         string
	Model           string
	SystemPrompt    string
	AllowedTools    []string
	AddDirs         []string
	PermissionMode  string
	ResumeSessionID string
	ExtraArgs       []string
	WorkDir         string
	QueryTimeout    time.Duration
	// MCPConfigPath, when set, is passed to the CLI as --mcp-config.
	// It is produced by mcpdesc.Descriptor.WriteConfigFile; this
	// package never inspects its contents.
	MCPConfigPath string
}

// QueryOptions carries per-query overrides layered on top of Config for
// one send_query call. Zero values mean "inherit from Config". Only
// ResumeSessionID and ParentToolUseID are honored past the first query:
// the stdio adapter's subprocess is spawned once and the rest of these
// fields are argv-level settings fixed for that subprocess's lifetime,
// so they only take effect on the call that triggers the lazy spawn.
type QueryOptions struct {
	Model           string
	SystemPrompt    string
	AllowedTools    []string
	AddDirs         []string
	PermissionMode  string
	ResumeSessionID string
	ParentToolUseID string
}

// Adapter owns the CLI subprocess (or an equivalent channel) and speaks
// NDJSON with it. Start returns immediately; readiness is signalled
// asynchronously on the returned event channel.
type Adapter interface {
	// Start provisions the adapter and returns the event channel it will
	// publish on for its entire lifetime (closed after Stop completes).
	Start(ctx context.Context, cfg Config) (<-chan Event, error)

	// SendQuery enqueues a query FIFO; returns ErrBusy or ErrNotReady if
	// the adapter cannot accept it right now. The default adapter queues
	// up to 256 pending queries and returns ErrBusy only once that buffer
	// is full.
	SendQuery(requestID RequestID, prompt string, opts QueryOptions) error

	// Interrupt cancels whatever is currently in flight.
	Interrupt() error

	// Health reports current adapter health.
	Health() Health

	// Stop gracefully shuts down, releasing the subprocess and any
	// workspace resources. Idempotent.
	Stop() error
}

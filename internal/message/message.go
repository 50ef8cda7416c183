// Package message defines the typed sum-type model for the CLI's NDJSON
// protocol: messages and the content blocks nested inside them.
package message

// Kind tags the variant carried by a Message.
type Kind string

const (
	KindSystemInit            Kind = "system_init"
	KindSystemCompactBoundary Kind = "system_compact_boundary"
	KindSystemGeneric         Kind = "system_generic"
	KindAssistant             Kind = "assistant"
	KindUser                  Kind = "user"
	KindResult                Kind = "result"
	KindStreamEvent           Kind = "stream_event"
	KindRateLimitEvent        Kind = "rate_limit_event"
	KindToolProgress          Kind = "tool_progress"
	KindToolUseSummary        Kind = "tool_use_summary"
	KindAuthStatus            Kind = "auth_status"
	KindPromptSuggestion      Kind = "prompt_suggestion"
)

// PermissionMode enumerates the modes the CLI advertises in System.Init.
// "dontAsk" and "delegate" are additive values carried by only some
// protocol revisions; they round-trip as ordinary strings either way.
type PermissionMode string

const (
	PermissionModeDefault           PermissionMode = "default"
	PermissionModeAcceptEdits       PermissionMode = "acceptEdits"
	PermissionModeBypassPermissions PermissionMode = "bypassPermissions"
	PermissionModePlan              PermissionMode = "plan"
	PermissionModeDontAsk           PermissionMode = "dontAsk"
	PermissionModeDelegate          PermissionMode = "delegate"
)

// StopReason is carried as a raw string rather than an interned enum
// symbol: unrecognized values pass through unchanged instead of
// collapsing to a sentinel.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
)

// ResultSubtype is carried as a raw string for the same reason as StopReason.
type ResultSubtype string

const (
	ResultSubtypeSuccess                     ResultSubtype = "success"
	ResultSubtypeErrorMaxTurns                ResultSubtype = "error_max_turns"
	ResultSubtypeErrorDuringExecution         ResultSubtype = "error_during_execution"
	ResultSubtypeErrorMaxBudgetUSD            ResultSubtype = "error_max_budget_usd"
	ResultSubtypeErrorMaxStructuredOutputRetries ResultSubtype = "error_max_structured_output_retries"
)

// MCPServerStatus describes one entry of System.Init's mcp_servers list.
type MCPServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// PluginInfo describes one entry of System.Init's plugins list.
type PluginInfo struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// Usage carries token accounting shared by Assistant and Result messages.
type Usage struct {
	InputTokens              int64   `json:"input_tokens,omitempty"`
	OutputTokens             int64   `json:"output_tokens,omitempty"`
	CacheCreationInputTokens int64   `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64   `json:"cache_read_input_tokens,omitempty"`
	ServiceTier              string  `json:"service_tier,omitempty"`
	CostUSD                  float64 `json:"cost_usd,omitempty"`
}

// ModelUsage is one entry of Result.ModelUsage, keyed by model name.
type ModelUsage struct {
	InputTokens          int64   `json:"input_tokens,omitempty"`
	OutputTokens         int64   `json:"output_tokens,omitempty"`
	CacheReadInputTokens int64   `json:"cache_read_input_tokens,omitempty"`
	CostUSD              float64 `json:"cost_usd,omitempty"`
	ContextWindow        int64   `json:"context_window,omitempty"`
}

// PermissionDenial is one entry of Result.PermissionDenials.
type PermissionDenial struct {
	ToolName string `json:"tool_name"`
	Reason   string `json:"reason"`
}

// SystemInit is the session-initialization envelope: the first message a
// fresh conversation normally emits.
type SystemInit struct {
	Cwd               string            `json:"cwd,omitempty"`
	Model             string            `json:"model,omitempty"`
	PermissionMode    PermissionMode    `json:"permission_mode,omitempty"`
	APIKeySource      string            `json:"api_key_source,omitempty"`
	Tools             []string          `json:"tools,omitempty"`
	MCPServers        []MCPServerStatus `json:"mcp_servers,omitempty"`
	SlashCommands     []string          `json:"slash_commands,omitempty"`
	OutputStyle       string            `json:"output_style,omitempty"`
	Agents            []string          `json:"agents,omitempty"`
	Skills            []string          `json:"skills,omitempty"`
	Plugins           []PluginInfo      `json:"plugins,omitempty"`
	ClaudeCodeVersion string            `json:"claude_code_version,omitempty"`
}

// CompactMetadata describes a System.CompactBoundary event.
type CompactMetadata struct {
	Trigger   string `json:"trigger,omitempty"` // "auto" or "manual"
	PreTokens int64  `json:"pre_tokens,omitempty"`
}

// InnerMessage is the nested "message" object carried by Assistant and
// User messages.
type InnerMessage struct {
	ID           string         `json:"id,omitempty"`
	Model        string         `json:"model,omitempty"`
	Content      []ContentBlock `json:"content,omitempty"`
	StopReason   StopReason     `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
}

// AssistantError enumerates the recognized Assistant.Error values; unknown
// strings are preserved verbatim (see Message.AssistantErrorOther).
type AssistantError string

const (
	AssistantErrorAuthenticationFailed AssistantError = "authentication_failed"
	AssistantErrorBillingError         AssistantError = "billing_error"
	AssistantErrorRateLimit            AssistantError = "rate_limit"
	AssistantErrorInvalidRequest       AssistantError = "invalid_request"
	AssistantErrorServerError          AssistantError = "server_error"
)

// RateLimitStatus enumerates RateLimitEvent.Status values.
type RateLimitStatus string

const (
	RateLimitAllowed        RateLimitStatus = "allowed"
	RateLimitAllowedWarning RateLimitStatus = "allowed_warning"
	RateLimitRejected       RateLimitStatus = "rejected"
)

// Message is the tagged sum type for every decoded NDJSON line. Exactly
// the fields relevant to Kind are populated; Kind is the only safe
// discriminant to switch on.
type Message struct {
	Kind      Kind
	SessionID string
	UUID      string

	// System.Init
	Init *SystemInit

	// System.CompactBoundary
	CompactMetadata *CompactMetadata

	// System.Generic
	Subtype string
	Data    map[string]any

	// Assistant / User
	Inner              InnerMessage
	ParentToolUseID    string
	ToolUseResult      map[string]any
	AssistantError     AssistantError
	AssistantErrorRaw  string // raw error string when AssistantError is empty

	// Result
	ResultSubtype     ResultSubtype
	ResultSubtypeRaw  string // raw subtype string when ResultSubtype is empty
	IsError           bool
	DurationMS        float64
	DurationAPIMS     float64
	NumTurns          int64
	Result            string
	TotalCostUSD      float64
	Usage             *Usage
	ModelUsage        map[string]ModelUsage
	PermissionDenials []PermissionDenial
	Errors            []string
	StructuredOutput  any

	// StreamEvent
	Event *StreamEventEnvelope

	// RateLimitEvent
	RateLimitStatus RateLimitStatus
	ResetsAt        string
	Utilization     float64

	// ToolProgress
	ToolUseID             string
	ToolName              string
	ElapsedTimeSeconds    float64
	ProgressParentToolUse string

	// ToolUseSummary
	Summary             string
	PrecedingToolUseIDs []string

	// AuthStatus
	IsAuthenticating bool
	Output           []string
	AuthError        string

	// PromptSuggestion
	Suggestion string
}

// StreamEventType enumerates the StreamEvent.Event.Type values.
type StreamEventType string

const (
	StreamEventMessageStart      StreamEventType = "message_start"
	StreamEventContentBlockStart StreamEventType = "content_block_start"
	StreamEventContentBlockDelta StreamEventType = "content_block_delta"
	StreamEventContentBlockStop  StreamEventType = "content_block_stop"
	StreamEventMessageDelta      StreamEventType = "message_delta"
	StreamEventMessageStop       StreamEventType = "message_stop"
)

// DeltaType enumerates the kinds of delta carried in a StreamEventEnvelope.
type DeltaType string

const (
	DeltaTypeText       DeltaType = "text_delta"
	DeltaTypeThinking   DeltaType = "thinking_delta"
	DeltaTypeInputJSON  DeltaType = "input_json_delta"
)

// Delta is the incremental payload of a content_block_delta event.
type Delta struct {
	Type        DeltaType
	Text        string
	Thinking    string
	PartialJSON string
}

// StreamEventEnvelope is the partial-streaming payload carried by
// Message.Event when Kind == KindStreamEvent.
type StreamEventEnvelope struct {
	Type         StreamEventType
	Index        *int64
	Delta        *Delta
	ContentBlock *ContentBlock
}

// IsTerminal reports whether this message closes its request's channel.
func (m Message) IsTerminal() bool {
	return m.Kind == KindResult
}

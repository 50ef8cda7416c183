package message

// ContentBlockType tags the variant carried by a ContentBlock.
type ContentBlockType string

const (
	ContentBlockText       ContentBlockType = "text"
	ContentBlockThinking   ContentBlockType = "thinking"
	ContentBlockToolUse    ContentBlockType = "tool_use"
	ContentBlockToolResult ContentBlockType = "tool_result"
	ContentBlockUnknown    ContentBlockType = "unknown"
)

// ContentBlock is the sum type nested inside Assistant/User message
// content lists. As with Message, only the fields relevant to Type are
// populated.
type ContentBlock struct {
	Type ContentBlockType

	// Text
	Text string

	// Thinking — both Thinking and Signature are required by the wire
	// format; a decode that finds either missing is a hard parse error.
	Thinking  string
	Signature string

	// ToolUse
	ToolUseID    string
	ToolUseName  string
	ToolUseInput map[string]any
	Caller       string

	// ToolResult
	ToolResultToolUseID string
	ToolResultContent   string
	ToolResultBlocks    []ContentBlock // populated when content was a list instead of a string
	ToolResultIsError   bool

	// Unknown — preserves the raw shape of a content block type this
	// decoder does not recognize, so an unfamiliar block type never
	// fails decoding outright.
	UnknownType string
	Raw         map[string]any
}

// HasToolUse reports whether content contains at least one ToolUse block.
// Used by StreamCombinators' "tool_use" pseudo-tag filter.
func HasToolUse(content []ContentBlock) bool {
	for _, b := range content {
		if b.Type == ContentBlockToolUse {
			return true
		}
	}
	return false
}

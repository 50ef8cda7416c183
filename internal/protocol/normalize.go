package protocol

// camelAliases maps the specific camelCase keys the CLI is known to emit
// onto their canonical snake_case equivalent. This is deliberately a
// fixed list rather than a generic camelCase->snake_case transform: the
// wire format mixes conventions inconsistently enough that a blanket
// conversion would mangle keys that are already snake_case with an
// embedded capital (there are none today, but guessing is worse than an
// explicit table).
var camelAliases = map[string]string{
	"apiKeySource":      "api_key_source",
	"permissionMode":    "permission_mode",
	"modelUsage":        "model_usage",
	"resetsAt":          "resets_at",
	"sessionId":         "session_id",
	"parentToolUseId":   "parent_tool_use_id",
	"toolUseId":         "tool_use_id",
	"isError":           "is_error",
	"stopReason":        "stop_reason",
	"stopSequence":      "stop_sequence",
	"totalCostUsd":      "total_cost_usd",
	"numTurns":          "num_turns",
	"durationMs":        "duration_ms",
	"durationApiMs":     "duration_api_ms",
	"permissionDenials": "permission_denials",
	"structuredOutput":  "structured_output",
	"claudeCodeVersion": "claude_code_version",
	"outputStyle":       "output_style",
	"slashCommands":     "slash_commands",
	"mcpServers":        "mcp_servers",
	"toolName":          "tool_name",
	"elapsedTimeSeconds": "elapsed_time_seconds",
	"precedingToolUseIds": "preceding_tool_use_ids",
	"isAuthenticating":  "is_authenticating",
	"partialJson":       "partial_json",
	"contentBlock":      "content_block",
}

// normalizeKeys rewrites camelCase keys known to appear in the wire
// format onto their snake_case equivalent, at the single boundary where
// a raw JSON object becomes a map consulted by the rest of the decoder.
// It recurses through every nested object and array, so aliased keys
// are rewritten at any depth.
func normalizeKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			key := k
			if alias, ok := camelAliases[k]; ok {
				key = alias
			}
			out[key] = normalizeKeys(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalizeKeys(inner)
		}
		return out
	default:
		return v
	}
}

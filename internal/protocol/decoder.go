// Package protocol implements MessageDecoder and ContentBlockDecoder: the
// layer that turns one parsed JSON object into the tagged sum types
// defined in internal/message. Decoding happens in two steps —
// json.Unmarshal into map[string]any, then a shape validator here that
// projects into the closed tagged union (plus a generic Unknown/Generic
// fallback) — so that nothing downstream touches a raw map directly.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/clisession/clisession/internal/message"
)

// Decode parses one JSON object (already split into a line by
// internal/ndjson) into a Message. Unknown system subtypes never fail
// decoding: they surface as KindSystemGeneric carrying the raw payload.
// An unknown top-level type returns a KindUnknownMessageType
// DecodeError.
func Decode(line []byte) (message.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return message.Message{}, shapeError(err.Error())
	}
	raw, _ = normalizeKeys(raw).(map[string]any)

	typ, ok := raw["type"].(string)
	if !ok || typ == "" {
		return message.Message{}, &DecodeError{Kind: KindMissingType, Detail: "\"type\" field absent or not a string"}
	}

	sessionID, _ := raw["session_id"].(string)
	uuid, _ := raw["uuid"].(string)
	base := message.Message{SessionID: sessionID, UUID: uuid}

	switch typ {
	case "system":
		return decodeSystem(base, raw)
	case "assistant":
		return decodeAssistant(base, raw)
	case "user":
		return decodeUser(base, raw)
	case "result":
		return decodeResult(base, raw)
	case "stream_event":
		return decodeStreamEvent(base, raw)
	case "rate_limit_event":
		return decodeRateLimitEvent(base, raw)
	case "tool_progress":
		return decodeToolProgress(base, raw)
	case "tool_use_summary":
		return decodeToolUseSummary(base, raw)
	case "auth_status":
		return decodeAuthStatus(base, raw)
	case "prompt_suggestion":
		return decodePromptSuggestion(base, raw)
	default:
		return message.Message{}, &DecodeError{Kind: KindUnknownMessageType, TypeName: typ, Detail: "unrecognized top-level type"}
	}
}

func decodeSystem(base message.Message, raw map[string]any) (message.Message, error) {
	subtype, _ := raw["subtype"].(string)
	switch subtype {
	case "init":
		base.Kind = message.KindSystemInit
		base.Init = &message.SystemInit{
			Cwd:               str(raw, "cwd"),
			Model:             str(raw, "model"),
			PermissionMode:    message.PermissionMode(str(raw, "permission_mode")),
			APIKeySource:      str(raw, "api_key_source"),
			Tools:             strSlice(raw, "tools"),
			MCPServers:        mcpServers(raw, "mcp_servers"),
			SlashCommands:     strSlice(raw, "slash_commands"),
			OutputStyle:       str(raw, "output_style"),
			Agents:            strSlice(raw, "agents"),
			Skills:            strSlice(raw, "skills"),
			Plugins:           plugins(raw, "plugins"),
			ClaudeCodeVersion: str(raw, "claude_code_version"),
		}
		return base, nil
	case "compact_boundary":
		base.Kind = message.KindSystemCompactBoundary
		meta, _ := raw["compact_metadata"].(map[string]any)
		base.CompactMetadata = &message.CompactMetadata{
			Trigger:   str(meta, "trigger"),
			PreTokens: int64Of(meta, "pre_tokens"),
		}
		return base, nil
	default:
		base.Kind = message.KindSystemGeneric
		base.Subtype = subtype
		base.Data = raw
		return base, nil
	}
}

func decodeAssistant(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindAssistant
	inner, err := decodeInnerMessage(raw)
	if err != nil {
		return message.Message{}, err
	}
	base.Inner = inner
	base.ParentToolUseID = str(raw, "parent_tool_use_id")

	if errStr := str(raw, "error"); errStr != "" {
		switch message.AssistantError(errStr) {
		case message.AssistantErrorAuthenticationFailed, message.AssistantErrorBillingError,
			message.AssistantErrorRateLimit, message.AssistantErrorInvalidRequest, message.AssistantErrorServerError:
			base.AssistantError = message.AssistantError(errStr)
		default:
			base.AssistantErrorRaw = errStr
		}
	}
	return base, nil
}

func decodeUser(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindUser
	inner, err := decodeInnerMessage(raw)
	if err != nil {
		return message.Message{}, err
	}
	base.Inner = inner
	base.ParentToolUseID = str(raw, "parent_tool_use_id")
	if result, ok := raw["tool_use_result"].(map[string]any); ok {
		base.ToolUseResult = result
	}
	return base, nil
}

func decodeInnerMessage(raw map[string]any) (message.InnerMessage, error) {
	nested, _ := raw["message"].(map[string]any)
	inner := message.InnerMessage{
		ID:           str(nested, "id"),
		Model:        str(nested, "model"),
		StopReason:   message.StopReason(str(nested, "stop_reason")),
		StopSequence: str(nested, "stop_sequence"),
	}
	if usageRaw, ok := nested["usage"].(map[string]any); ok {
		u := decodeUsage(usageRaw)
		inner.Usage = &u
	}
	if contentList, ok := nested["content"].([]any); ok {
		blocks, err := DecodeContentBlocks(contentList)
		if err != nil {
			return message.InnerMessage{}, &DecodeError{Kind: KindContentParseError, Inner: err}
		}
		inner.Content = blocks
	}
	return inner, nil
}

func decodeResult(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindResult

	required := []string{"subtype", "is_error", "duration_ms", "duration_api_ms", "num_turns"}
	var missing []string
	for _, f := range required {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return message.Message{}, missingFields(missing...)
	}

	subtype := str(raw, "subtype")
	switch message.ResultSubtype(subtype) {
	case message.ResultSubtypeSuccess, message.ResultSubtypeErrorMaxTurns, message.ResultSubtypeErrorDuringExecution,
		message.ResultSubtypeErrorMaxBudgetUSD, message.ResultSubtypeErrorMaxStructuredOutputRetries:
		base.ResultSubtype = message.ResultSubtype(subtype)
	default:
		base.ResultSubtypeRaw = subtype
	}

	base.IsError, _ = raw["is_error"].(bool)
	base.DurationMS = floatOf(raw, "duration_ms")
	base.DurationAPIMS = floatOf(raw, "duration_api_ms")
	base.NumTurns = int64Of(raw, "num_turns")
	base.Result = str(raw, "result")
	base.TotalCostUSD = floatOf(raw, "total_cost_usd")

	if usageRaw, ok := raw["usage"].(map[string]any); ok {
		u := decodeUsage(usageRaw)
		base.Usage = &u
	} else {
		base.Usage = &message.Usage{}
	}

	if muRaw, ok := raw["model_usage"].(map[string]any); ok {
		mu := make(map[string]message.ModelUsage, len(muRaw))
		for model, v := range muRaw {
			entry, _ := v.(map[string]any)
			mu[model] = message.ModelUsage{
				InputTokens:          int64Of(entry, "input_tokens"),
				OutputTokens:         int64Of(entry, "output_tokens"),
				CacheReadInputTokens: int64Of(entry, "cache_read_input_tokens"),
				CostUSD:              floatOf(entry, "cost_usd"),
				ContextWindow:        int64Of(entry, "context_window"),
			}
		}
		base.ModelUsage = mu
	}

	if denialsRaw, ok := raw["permission_denials"].([]any); ok {
		denials := make([]message.PermissionDenial, 0, len(denialsRaw))
		for _, d := range denialsRaw {
			entry, _ := d.(map[string]any)
			denials = append(denials, message.PermissionDenial{
				ToolName: str(entry, "tool_name"),
				Reason:   str(entry, "reason"),
			})
		}
		base.PermissionDenials = denials
	}

	base.Errors = strSlice(raw, "errors")
	base.StructuredOutput = raw["structured_output"]

	return base, nil
}

func decodeStreamEvent(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindStreamEvent
	event, _ := raw["event"].(map[string]any)
	eventType := message.StreamEventType(str(event, "type"))

	env := &message.StreamEventEnvelope{Type: eventType}
	if _, ok := event["index"]; ok {
		idx := int64Of(event, "index")
		env.Index = &idx
	}
	if deltaRaw, ok := event["delta"].(map[string]any); ok {
		deltaType := message.DeltaType(str(deltaRaw, "type"))
		env.Delta = &message.Delta{
			Type:        deltaType,
			Text:        str(deltaRaw, "text"),
			Thinking:    str(deltaRaw, "thinking"),
			PartialJSON: str(deltaRaw, "partial_json"),
		}
	}
	if blockRaw, ok := event["content_block"].(map[string]any); ok {
		block, err := DecodeContentBlock(blockRaw)
		if err != nil {
			return message.Message{}, &DecodeError{Kind: KindContentParseError, Inner: err}
		}
		env.ContentBlock = &block
	}
	base.Event = env
	return base, nil
}

func decodeRateLimitEvent(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindRateLimitEvent
	base.RateLimitStatus = message.RateLimitStatus(str(raw, "status"))
	base.ResetsAt = str(raw, "resets_at")
	base.Utilization = floatOf(raw, "utilization")
	return base, nil
}

func decodeToolProgress(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindToolProgress
	base.ToolUseID = str(raw, "tool_use_id")
	base.ToolName = str(raw, "tool_name")
	base.ElapsedTimeSeconds = floatOf(raw, "elapsed_time_seconds")
	base.ProgressParentToolUse = str(raw, "parent_tool_use_id")
	return base, nil
}

func decodeToolUseSummary(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindToolUseSummary
	base.Summary = str(raw, "summary")
	base.PrecedingToolUseIDs = strSlice(raw, "preceding_tool_use_ids")
	return base, nil
}

func decodeAuthStatus(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindAuthStatus
	base.IsAuthenticating, _ = raw["is_authenticating"].(bool)
	base.Output = strSlice(raw, "output")
	base.AuthError = str(raw, "error")
	return base, nil
}

func decodePromptSuggestion(base message.Message, raw map[string]any) (message.Message, error) {
	base.Kind = message.KindPromptSuggestion
	base.Suggestion = str(raw, "suggestion")
	return base, nil
}

func decodeUsage(raw map[string]any) message.Usage {
	return message.Usage{
		InputTokens:              int64Of(raw, "input_tokens"),
		OutputTokens:             int64Of(raw, "output_tokens"),
		CacheCreationInputTokens: int64Of(raw, "cache_creation_input_tokens"),
		CacheReadInputTokens:     int64Of(raw, "cache_read_input_tokens"),
		ServiceTier:              str(raw, "service_tier"),
		CostUSD:                  floatOf(raw, "cost_usd"),
	}
}

// DecodeStream decodes every non-empty line in text, returning the
// decoded messages or a LineDecodeError naming the zero-based index of
// the first offending line. Empty lines are skipped silently.
func DecodeStream(text []byte) ([]message.Message, error) {
	var out []message.Message
	lineNo := 0
	for _, line := range bytes.Split(text, []byte{'\n'}) {
		trimmed := bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(trimmed)) == 0 {
			lineNo++
			continue
		}
		msg, err := Decode(trimmed)
		if err != nil {
			return nil, &LineDecodeError{LineNo: lineNo, Err: err}
		}
		out = append(out, msg)
		lineNo++
	}
	return out, nil
}

func str(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	s, _ := raw[key].(string)
	return s
}

func strSlice(raw map[string]any, key string) []string {
	if raw == nil {
		return nil
	}
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatOf(raw map[string]any, key string) float64 {
	if raw == nil {
		return 0
	}
	switch v := raw[key].(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	}
	return 0
}

func int64Of(raw map[string]any, key string) int64 {
	if raw == nil {
		return 0
	}
	switch v := raw[key].(type) {
	case json.Number:
		i, err := v.Int64()
		if err == nil {
			return i
		}
		f, _ := v.Float64()
		return int64(f)
	case float64:
		return int64(v)
	}
	return 0
}

func mcpServers(raw map[string]any, key string) []message.MCPServerStatus {
	if raw == nil {
		return nil
	}
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]message.MCPServerStatus, 0, len(list))
	for _, v := range list {
		entry, _ := v.(map[string]any)
		out = append(out, message.MCPServerStatus{Name: str(entry, "name"), Status: str(entry, "status")})
	}
	return out
}

func plugins(raw map[string]any, key string) []message.PluginInfo {
	if raw == nil {
		return nil
	}
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]message.PluginInfo, 0, len(list))
	for _, v := range list {
		entry, _ := v.(map[string]any)
		out = append(out, message.PluginInfo{Name: str(entry, "name"), Path: str(entry, "path")})
	}
	return out
}

package protocol

import (
	"github.com/clisession/clisession/internal/message"
)

// Encode projects a Message back into a plain JSON-able map, the
// inverse of Decode. It omits nil/zero-valued optional fields so that
// decode(encode(m)) reproduces m structurally: fields absent on the
// wire stay absent here rather than round-tripping as explicit nulls
// or zeros.
func Encode(m message.Message) map[string]any {
	out := map[string]any{}
	setIf(out, "session_id", m.SessionID)
	setIf(out, "uuid", m.UUID)

	switch m.Kind {
	case message.KindSystemInit:
		out["type"] = "system"
		out["subtype"] = "init"
		encodeSystemInit(out, m.Init)
	case message.KindSystemCompactBoundary:
		out["type"] = "system"
		out["subtype"] = "compact_boundary"
		if m.CompactMetadata != nil {
			meta := map[string]any{}
			setIf(meta, "trigger", m.CompactMetadata.Trigger)
			if m.CompactMetadata.PreTokens != 0 {
				meta["pre_tokens"] = m.CompactMetadata.PreTokens
			}
			out["compact_metadata"] = meta
		}
	case message.KindSystemGeneric:
		out["type"] = "system"
		out["subtype"] = m.Subtype
		for k, v := range m.Data {
			if k == "type" || k == "subtype" {
				continue
			}
			out[k] = v
		}
	case message.KindAssistant:
		out["type"] = "assistant"
		out["message"] = encodeInnerMessage(m.Inner)
		setIf(out, "parent_tool_use_id", m.ParentToolUseID)
		if m.AssistantError != "" {
			out["error"] = string(m.AssistantError)
		} else if m.AssistantErrorRaw != "" {
			out["error"] = m.AssistantErrorRaw
		}
	case message.KindUser:
		out["type"] = "user"
		out["message"] = encodeInnerMessage(m.Inner)
		setIf(out, "parent_tool_use_id", m.ParentToolUseID)
		if m.ToolUseResult != nil {
			out["tool_use_result"] = m.ToolUseResult
		}
	case message.KindResult:
		out["type"] = "result"
		if m.ResultSubtype != "" {
			out["subtype"] = string(m.ResultSubtype)
		} else {
			out["subtype"] = m.ResultSubtypeRaw
		}
		out["is_error"] = m.IsError
		out["duration_ms"] = m.DurationMS
		out["duration_api_ms"] = m.DurationAPIMS
		out["num_turns"] = m.NumTurns
		setIf(out, "result", m.Result)
		if m.TotalCostUSD != 0 {
			out["total_cost_usd"] = m.TotalCostUSD
		}
		if m.Usage != nil {
			out["usage"] = encodeUsage(*m.Usage)
		}
		if len(m.ModelUsage) > 0 {
			mu := map[string]any{}
			for k, v := range m.ModelUsage {
				mu[k] = map[string]any{
					"input_tokens":            v.InputTokens,
					"output_tokens":           v.OutputTokens,
					"cache_read_input_tokens": v.CacheReadInputTokens,
					"cost_usd":                v.CostUSD,
					"context_window":          v.ContextWindow,
				}
			}
			out["model_usage"] = mu
		}
		if len(m.PermissionDenials) > 0 {
			denials := make([]any, 0, len(m.PermissionDenials))
			for _, d := range m.PermissionDenials {
				denials = append(denials, map[string]any{"tool_name": d.ToolName, "reason": d.Reason})
			}
			out["permission_denials"] = denials
		}
		if len(m.Errors) > 0 {
			errs := make([]any, len(m.Errors))
			for i, e := range m.Errors {
				errs[i] = e
			}
			out["errors"] = errs
		}
		if m.StructuredOutput != nil {
			out["structured_output"] = m.StructuredOutput
		}
	case message.KindStreamEvent:
		out["type"] = "stream_event"
		out["event"] = encodeStreamEventEnvelope(m.Event)
	case message.KindRateLimitEvent:
		out["type"] = "rate_limit_event"
		out["status"] = string(m.RateLimitStatus)
		setIf(out, "resets_at", m.ResetsAt)
		if m.Utilization != 0 {
			out["utilization"] = m.Utilization
		}
	case message.KindToolProgress:
		out["type"] = "tool_progress"
		out["tool_use_id"] = m.ToolUseID
		out["tool_name"] = m.ToolName
		if m.ElapsedTimeSeconds != 0 {
			out["elapsed_time_seconds"] = m.ElapsedTimeSeconds
		}
		setIf(out, "parent_tool_use_id", m.ProgressParentToolUse)
	case message.KindToolUseSummary:
		out["type"] = "tool_use_summary"
		out["summary"] = m.Summary
		if len(m.PrecedingToolUseIDs) > 0 {
			ids := make([]any, len(m.PrecedingToolUseIDs))
			for i, id := range m.PrecedingToolUseIDs {
				ids[i] = id
			}
			out["preceding_tool_use_ids"] = ids
		}
	case message.KindAuthStatus:
		out["type"] = "auth_status"
		out["is_authenticating"] = m.IsAuthenticating
		if len(m.Output) > 0 {
			outp := make([]any, len(m.Output))
			for i, o := range m.Output {
				outp[i] = o
			}
			out["output"] = outp
		}
		setIf(out, "error", m.AuthError)
	case message.KindPromptSuggestion:
		out["type"] = "prompt_suggestion"
		out["suggestion"] = m.Suggestion
	}
	return out
}

func encodeSystemInit(out map[string]any, init *message.SystemInit) {
	if init == nil {
		return
	}
	setIf(out, "cwd", init.Cwd)
	setIf(out, "model", init.Model)
	if init.PermissionMode != "" {
		out["permission_mode"] = string(init.PermissionMode)
	}
	setIf(out, "api_key_source", init.APIKeySource)
	setStrSliceIf(out, "tools", init.Tools)
	setStrSliceIf(out, "slash_commands", init.SlashCommands)
	setIf(out, "output_style", init.OutputStyle)
	setStrSliceIf(out, "agents", init.Agents)
	setStrSliceIf(out, "skills", init.Skills)
	setIf(out, "claude_code_version", init.ClaudeCodeVersion)
	if len(init.MCPServers) > 0 {
		servers := make([]any, 0, len(init.MCPServers))
		for _, s := range init.MCPServers {
			servers = append(servers, map[string]any{"name": s.Name, "status": s.Status})
		}
		out["mcp_servers"] = servers
	}
	if len(init.Plugins) > 0 {
		plugs := make([]any, 0, len(init.Plugins))
		for _, p := range init.Plugins {
			plugs = append(plugs, map[string]any{"name": p.Name, "path": p.Path})
		}
		out["plugins"] = plugs
	}
}

func encodeInnerMessage(inner message.InnerMessage) map[string]any {
	out := map[string]any{}
	setIf(out, "id", inner.ID)
	setIf(out, "model", inner.Model)
	if inner.StopReason != "" {
		out["stop_reason"] = string(inner.StopReason)
	}
	setIf(out, "stop_sequence", inner.StopSequence)
	if inner.Usage != nil {
		out["usage"] = encodeUsage(*inner.Usage)
	}
	if inner.Content != nil {
		blocks := make([]any, 0, len(inner.Content))
		for _, b := range inner.Content {
			blocks = append(blocks, EncodeContentBlock(b))
		}
		out["content"] = blocks
	}
	return out
}

// EncodeContentBlock is the inverse of DecodeContentBlock.
func EncodeContentBlock(b message.ContentBlock) map[string]any {
	switch b.Type {
	case message.ContentBlockText:
		return map[string]any{"type": "text", "text": b.Text}
	case message.ContentBlockThinking:
		return map[string]any{"type": "thinking", "thinking": b.Thinking, "signature": b.Signature}
	case message.ContentBlockToolUse:
		out := map[string]any{"type": "tool_use", "id": b.ToolUseID, "name": b.ToolUseName}
		if b.ToolUseInput != nil {
			out["input"] = b.ToolUseInput
		}
		setIf(out, "caller", b.Caller)
		return out
	case message.ContentBlockToolResult:
		out := map[string]any{"type": "tool_result", "tool_use_id": b.ToolResultToolUseID}
		if b.ToolResultBlocks != nil {
			blocks := make([]any, 0, len(b.ToolResultBlocks))
			for _, inner := range b.ToolResultBlocks {
				blocks = append(blocks, EncodeContentBlock(inner))
			}
			out["content"] = blocks
		} else {
			out["content"] = b.ToolResultContent
		}
		if b.ToolResultIsError {
			out["is_error"] = true
		}
		return out
	default:
		out := map[string]any{}
		for k, v := range b.Raw {
			out[k] = v
		}
		out["type"] = b.UnknownType
		return out
	}
}

func encodeUsage(u message.Usage) map[string]any {
	out := map[string]any{}
	if u.InputTokens != 0 {
		out["input_tokens"] = u.InputTokens
	}
	if u.OutputTokens != 0 {
		out["output_tokens"] = u.OutputTokens
	}
	if u.CacheCreationInputTokens != 0 {
		out["cache_creation_input_tokens"] = u.CacheCreationInputTokens
	}
	if u.CacheReadInputTokens != 0 {
		out["cache_read_input_tokens"] = u.CacheReadInputTokens
	}
	setIf(out, "service_tier", u.ServiceTier)
	if u.CostUSD != 0 {
		out["cost_usd"] = u.CostUSD
	}
	return out
}

func encodeStreamEventEnvelope(env *message.StreamEventEnvelope) map[string]any {
	if env == nil {
		return map[string]any{}
	}
	out := map[string]any{"type": string(env.Type)}
	if env.Index != nil {
		out["index"] = *env.Index
	}
	if env.Delta != nil {
		delta := map[string]any{"type": string(env.Delta.Type)}
		setIf(delta, "text", env.Delta.Text)
		setIf(delta, "thinking", env.Delta.Thinking)
		setIf(delta, "partial_json", env.Delta.PartialJSON)
		out["delta"] = delta
	}
	if env.ContentBlock != nil {
		out["content_block"] = EncodeContentBlock(*env.ContentBlock)
	}
	return out
}

func setIf(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func setStrSliceIf(m map[string]any, key string, value []string) {
	if len(value) == 0 {
		return
	}
	out := make([]any, len(value))
	for i, v := range value {
		out[i] = v
	}
	m[key] = out
}

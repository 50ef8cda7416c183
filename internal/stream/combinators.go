// Package stream implements StreamCombinators: pure lazy transformations
// over a message sequence. Every combinator is built on Go's standard
// iter.Seq2 range-over-func shape, the same lazy-iterator idiom the
// retrieved claude-agent-sdk-go reference adapters use for their
// ReadMessages/Query results, so a consumer composes combinators with
// ordinary range loops instead of buffering.
package stream

import (
	"iter"

	"github.com/clisession/clisession/internal/correlate"
	"github.com/clisession/clisession/internal/message"
)

// MessageSeq is the lazy sequence type every combinator consumes and
// (mostly) produces: a Message paired with a decode/transport error that,
// once non-nil, is the last pair yielded.
type MessageSeq = iter.Seq2[message.Message, error]

// TextContent concatenates Text block text in arrival order, one
// element per block, skipping everything else.
func TextContent(seq MessageSeq) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for msg, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			if msg.Kind != message.KindAssistant && msg.Kind != message.KindUser {
				continue
			}
			for _, block := range msg.Inner.Content {
				if block.Type != message.ContentBlockText {
					continue
				}
				if !yield(block.Text, nil) {
					return
				}
			}
		}
	}
}

// ThinkingContent is TextContent's counterpart for Thinking blocks.
func ThinkingContent(seq MessageSeq) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for msg, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			if msg.Kind != message.KindAssistant {
				continue
			}
			for _, block := range msg.Inner.Content {
				if block.Type != message.ContentBlockThinking {
					continue
				}
				if !yield(block.Thinking, nil) {
					return
				}
			}
		}
	}
}

// ToolUses yields every ToolUse content block encountered on Assistant
// messages, in arrival order.
func ToolUses(seq MessageSeq) iter.Seq2[message.ContentBlock, error] {
	return func(yield func(message.ContentBlock, error) bool) {
		for msg, err := range seq {
			if err != nil {
				var zero message.ContentBlock
				yield(zero, err)
				return
			}
			if msg.Kind != message.KindAssistant {
				continue
			}
			for _, block := range msg.Inner.Content {
				if block.Type != message.ContentBlockToolUse {
					continue
				}
				if !yield(block, nil) {
					return
				}
			}
		}
	}
}

// ToolResultsByName correlates tool uses internally and yields only the
// ToolResult blocks whose tool use had the given name, in tool-result
// arrival order.
func ToolResultsByName(seq MessageSeq, name string) iter.Seq2[message.ContentBlock, error] {
	return func(yield func(message.ContentBlock, error) bool) {
		pendingNames := map[string]string{}
		for msg, err := range seq {
			if err != nil {
				var zero message.ContentBlock
				yield(zero, err)
				return
			}
			switch msg.Kind {
			case message.KindAssistant:
				for _, block := range msg.Inner.Content {
					if block.Type == message.ContentBlockToolUse {
						pendingNames[block.ToolUseID] = block.ToolUseName
					}
				}
			case message.KindUser:
				for _, block := range msg.Inner.Content {
					if block.Type != message.ContentBlockToolResult {
						continue
					}
					toolName, ok := pendingNames[block.ToolResultToolUseID]
					if !ok || toolName != name {
						continue
					}
					delete(pendingNames, block.ToolResultToolUseID)
					if !yield(block, nil) {
						return
					}
				}
			}
		}
	}
}

// FilterType filters by message variant tag. The pseudo-tags "tool_use"
// (any Assistant message containing at least one ToolUse block) and
// "text_delta" (any StreamEvent carrying a text delta) are recognized in
// addition to the ordinary Kind values.
func FilterType(seq MessageSeq, tag string) MessageSeq {
	return func(yield func(message.Message, error) bool) {
		for msg, err := range seq {
			if err != nil {
				yield(message.Message{}, err)
				return
			}
			if matchesTag(msg, tag) {
				if !yield(msg, nil) {
					return
				}
			}
		}
	}
}

func matchesTag(msg message.Message, tag string) bool {
	switch tag {
	case "tool_use":
		return msg.Kind == message.KindAssistant && message.HasToolUse(msg.Inner.Content)
	case "text_delta":
		return msg.Kind == message.KindStreamEvent && msg.Event != nil && msg.Event.Delta != nil && msg.Event.Delta.Type == message.DeltaTypeText
	default:
		return string(msg.Kind) == tag
	}
}

// TextDeltas extracts StreamEvent text deltas.
func TextDeltas(seq MessageSeq) iter.Seq2[string, error] {
	return deltasOfType(seq, message.DeltaTypeText, func(d message.Delta) string { return d.Text })
}

// ThinkingDeltas extracts StreamEvent thinking deltas.
func ThinkingDeltas(seq MessageSeq) iter.Seq2[string, error] {
	return deltasOfType(seq, message.DeltaTypeThinking, func(d message.Delta) string { return d.Thinking })
}

func deltasOfType(seq MessageSeq, typ message.DeltaType, extract func(message.Delta) string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for msg, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			if msg.Kind != message.KindStreamEvent || msg.Event == nil || msg.Event.Delta == nil {
				continue
			}
			if msg.Event.Delta.Type != typ {
				continue
			}
			if !yield(extract(*msg.Event.Delta), nil) {
				return
			}
		}
	}
}

// ContentDeltas extracts every StreamEvent delta regardless of type.
func ContentDeltas(seq MessageSeq) iter.Seq2[message.Delta, error] {
	return func(yield func(message.Delta, error) bool) {
		for msg, err := range seq {
			if err != nil {
				yield(message.Delta{}, err)
				return
			}
			if msg.Kind != message.KindStreamEvent || msg.Event == nil || msg.Event.Delta == nil {
				continue
			}
			if !yield(*msg.Event.Delta, nil) {
				return
			}
		}
	}
}

// UntilResult truncates inclusive at the first Result message.
func UntilResult(seq MessageSeq) MessageSeq {
	return func(yield func(message.Message, error) bool) {
		for msg, err := range seq {
			if err != nil {
				yield(message.Message{}, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
			if msg.Kind == message.KindResult {
				return
			}
		}
	}
}

// FinalText consumes until the first Result and returns its Result
// field, or nil if the stream ends without one.
func FinalText(seq MessageSeq) (*string, error) {
	for msg, err := range seq {
		if err != nil {
			return nil, err
		}
		if msg.Kind == message.KindResult {
			result := msg.Result
			return &result, nil
		}
	}
	return nil, nil
}

// ToolCallSummary pairs one ToolUse with its eventual ToolResult (nil if
// none arrived before the terminal Result), as returned by Collect.
type ToolCallSummary struct {
	Use    message.ContentBlock
	Result *message.ContentBlock
}

// CollectResult is the drained summary Collect returns.
type CollectResult struct {
	Text      string
	Thinking  string
	ToolCalls []ToolCallSummary
	Result    string
	IsError   bool
}

// Collect drains seq fully and returns a summary. ToolCalls preserves
// tool-use arrival order.
func Collect(seq MessageSeq) (CollectResult, error) {
	var (
		out       CollectResult
		toolIndex = map[string]int{}
	)
	for msg, err := range seq {
		if err != nil {
			return out, err
		}
		switch msg.Kind {
		case message.KindAssistant, message.KindUser:
			for _, block := range msg.Inner.Content {
				switch block.Type {
				case message.ContentBlockText:
					out.Text += block.Text
				case message.ContentBlockThinking:
					out.Thinking += block.Thinking
				case message.ContentBlockToolUse:
					toolIndex[block.ToolUseID] = len(out.ToolCalls)
					out.ToolCalls = append(out.ToolCalls, ToolCallSummary{Use: block})
				case message.ContentBlockToolResult:
					if idx, ok := toolIndex[block.ToolResultToolUseID]; ok {
						b := block
						out.ToolCalls[idx].Result = &b
					}
				}
			}
		case message.KindResult:
			out.Result = msg.Result
			out.IsError = msg.IsError
		}
	}
	return out, nil
}

// Tap runs a side effect for every message passing through, unmodified.
func Tap(seq MessageSeq, fn func(message.Message)) MessageSeq {
	return func(yield func(message.Message, error) bool) {
		for msg, err := range seq {
			if err == nil {
				fn(msg)
			}
			if !yield(msg, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// OnToolUse runs a side effect for every ToolUse block encountered,
// passing the full message stream through unmodified.
func OnToolUse(seq MessageSeq, fn func(message.ContentBlock)) MessageSeq {
	return Tap(seq, func(msg message.Message) {
		if msg.Kind != message.KindAssistant {
			return
		}
		for _, block := range msg.Inner.Content {
			if block.Type == message.ContentBlockToolUse {
				fn(block)
			}
		}
	})
}

// WithCorrelator wires a correlate.Correlator to observe every message
// passing through, for consumers that want ToolEvent callbacks alongside
// the raw message sequence rather than via ToolResultsByName.
func WithCorrelator(seq MessageSeq, c *correlate.Correlator) MessageSeq {
	return Tap(seq, c.Observe)
}

package protocol

import (
	"fmt"

	"github.com/clisession/clisession/internal/message"
)

// DecodeContentBlock parses one content-block object. Thinking blocks
// require both "thinking" and "signature"; their absence is a hard
// parse error rather than a zero-valued field.
func DecodeContentBlock(raw map[string]any) (message.ContentBlock, error) {
	typ, _ := raw["type"].(string)

	switch message.ContentBlockType(typ) {
	case message.ContentBlockText:
		text, _ := raw["text"].(string)
		return message.ContentBlock{Type: message.ContentBlockText, Text: text}, nil

	case message.ContentBlockThinking:
		thinking, hasThinking := raw["thinking"].(string)
		signature, hasSignature := raw["signature"].(string)
		var missing []string
		if !hasThinking {
			missing = append(missing, "thinking")
		}
		if !hasSignature {
			missing = append(missing, "signature")
		}
		if len(missing) > 0 {
			return message.ContentBlock{}, missingFields(missing...)
		}
		return message.ContentBlock{Type: message.ContentBlockThinking, Thinking: thinking, Signature: signature}, nil

	case message.ContentBlockToolUse:
		id, _ := raw["id"].(string)
		name, _ := raw["name"].(string)
		input, _ := raw["input"].(map[string]any)
		caller, _ := raw["caller"].(string)
		return message.ContentBlock{
			Type:         message.ContentBlockToolUse,
			ToolUseID:    id,
			ToolUseName:  name,
			ToolUseInput: input,
			Caller:       caller,
		}, nil

	case message.ContentBlockToolResult:
		toolUseID, _ := raw["tool_use_id"].(string)
		isError, _ := raw["is_error"].(bool)
		block := message.ContentBlock{
			Type:                message.ContentBlockToolResult,
			ToolResultToolUseID: toolUseID,
			ToolResultIsError:   isError,
		}
		switch content := raw["content"].(type) {
		case string:
			block.ToolResultContent = content
		case []any:
			blocks, err := DecodeContentBlocks(content)
			if err != nil {
				return message.ContentBlock{}, &DecodeError{Kind: KindContentParseError, Inner: err}
			}
			block.ToolResultBlocks = blocks
		case nil:
			// absent content is left as the zero value
		default:
			return message.ContentBlock{}, shapeError("tool_result content must be a string or list")
		}
		return block, nil

	default:
		return message.ContentBlock{
			Type:        message.ContentBlockUnknown,
			UnknownType: typ,
			Raw:         raw,
		}, nil
	}
}

// DecodeContentBlocks decodes a JSON array of content-block objects,
// stopping at the first element that fails to decode.
func DecodeContentBlocks(items []any) ([]message.ContentBlock, error) {
	blocks := make([]message.ContentBlock, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("content block %d: not a JSON object", i)
		}
		block, err := DecodeContentBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

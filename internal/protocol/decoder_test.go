package protocol

import (
	"testing"

	"github.com/clisession/clisession/internal/message"
)

func TestDecodeSystemInit(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"init","session_id":"S","model":"claude","permissionMode":"default","apiKeySource":"env","tools":["Read","Write"]}`)
	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != message.KindSystemInit {
		t.Fatalf("expected KindSystemInit, got %v", msg.Kind)
	}
	if msg.SessionID != "S" {
		t.Fatalf("expected session id S, got %q", msg.SessionID)
	}
	if msg.Init.PermissionMode != message.PermissionModeDefault {
		t.Fatalf("expected default permission mode, got %v", msg.Init.PermissionMode)
	}
	if msg.Init.APIKeySource != "env" {
		t.Fatalf("camelCase alias not normalized: %+v", msg.Init)
	}
}

func TestDecodeUnknownSystemSubtypeIsGeneric(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"something_new","session_id":"S","extra":42}`)
	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != message.KindSystemGeneric || msg.Subtype != "something_new" {
		t.Fatalf("expected generic system fallback, got %+v", msg)
	}
}

func TestDecodeUnknownMessageTypeErrors(t *testing.T) {
	_, err := Decode([]byte(`{"type":"something_bogus"}`))
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != KindUnknownMessageType {
		t.Fatalf("expected KindUnknownMessageType, got %v", err)
	}
}

func TestDecodeAssistantWithToolUse(t *testing.T) {
	line := []byte(`{"type":"assistant","session_id":"S","message":{"id":"m1","content":[
		{"type":"text","text":"I'll read it."},
		{"type":"tool_use","id":"t1","name":"Read","input":{"path":"/a"}}
	],"stop_reason":"tool_use"}}`)
	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != message.KindAssistant {
		t.Fatalf("expected assistant, got %v", msg.Kind)
	}
	if len(msg.Inner.Content) != 2 {
		t.Fatalf("expected 2 content blocks, got %d", len(msg.Inner.Content))
	}
	if !message.HasToolUse(msg.Inner.Content) {
		t.Fatalf("expected tool use to be detected")
	}
}

func TestDecodeThinkingBlockRequiresSignature(t *testing.T) {
	line := []byte(`{"type":"assistant","session_id":"S","message":{"content":[{"type":"thinking","thinking":"hmm"}]}}`)
	_, err := Decode(line)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != KindContentParseError {
		t.Fatalf("expected content parse error for missing signature, got %v", err)
	}
}

func TestDecodeResultRequiredFields(t *testing.T) {
	line := []byte(`{"type":"result","session_id":"S","subtype":"success","is_error":false,"duration_ms":10.0,"duration_api_ms":5.0,"num_turns":1,"result":"Hi"}`)
	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != message.KindResult || msg.Result != "Hi" || msg.IsError {
		t.Fatalf("unexpected result message: %+v", msg)
	}
}

func TestDecodeResultMissingFieldsErrors(t *testing.T) {
	line := []byte(`{"type":"result","session_id":"S","subtype":"success"}`)
	_, err := Decode(line)
	de, ok := err.(*DecodeError)
	if !ok || de.Kind != KindMissingFields {
		t.Fatalf("expected missing_fields error, got %v", err)
	}
}

func TestDecodeStreamEventTextDelta(t *testing.T) {
	line := []byte(`{"type":"stream_event","session_id":"S","event":{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}}`)
	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Event == nil || msg.Event.Delta == nil || msg.Event.Delta.Text != "Hi" {
		t.Fatalf("unexpected stream event: %+v", msg.Event)
	}
}

func TestDecodeStreamSkipsEmptyLinesAndReportsLineNo(t *testing.T) {
	text := []byte("{\"type\":\"system\",\"subtype\":\"init\",\"session_id\":\"S\"}\n\n{garbage}\n")
	_, err := DecodeStream(text)
	lde, ok := err.(*LineDecodeError)
	if !ok {
		t.Fatalf("expected LineDecodeError, got %v", err)
	}
	if lde.LineNo != 2 {
		t.Fatalf("expected error on line 2, got %d", lde.LineNo)
	}
}

func TestDecodeCompactBoundaryUpdatesResumeCandidate(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"compact_boundary","session_id":"B","compact_metadata":{"trigger":"auto","pre_tokens":1000}}`)
	msg, err := Decode(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != message.KindSystemCompactBoundary || msg.SessionID != "B" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CompactMetadata.PreTokens != 1000 {
		t.Fatalf("unexpected pre_tokens: %+v", msg.CompactMetadata)
	}
}

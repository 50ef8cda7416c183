package transport

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBuildInputFrameShape(t *testing.T) {
	raw, err := buildInputFrame("hello", Config{ResumeSessionID: "S"}, QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw[len(raw)-1] != '\n' {
		t.Fatalf("expected trailing newline, got %q", raw)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw[:len(raw)-1], &decoded); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if decoded["type"] != "user" {
		t.Fatalf("expected type=user, got %v", decoded["type"])
	}
	if decoded["session_id"] != "S" {
		t.Fatalf("expected session_id S, got %v", decoded["session_id"])
	}
	msg, _ := decoded["message"].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "hello" {
		t.Fatalf("unexpected message field: %+v", msg)
	}
	if _, present := decoded["parent_tool_use_id"]; present {
		t.Fatalf("expected parent_tool_use_id omitted when empty, got %+v", decoded)
	}
}

func TestBuildInputFrameQueryOptionResumeOverride(t *testing.T) {
	raw, err := buildInputFrame("hi", Config{ResumeSessionID: "A"}, QueryOptions{ResumeSessionID: "B", ParentToolUseID: "t1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	json.Unmarshal(raw[:len(raw)-1], &decoded)
	if decoded["session_id"] != "B" {
		t.Fatalf("expected query option resume override, got %v", decoded["session_id"])
	}
	if decoded["parent_tool_use_id"] != "t1" {
		t.Fatalf("expected parent_tool_use_id t1, got %v", decoded["parent_tool_use_id"])
	}
}

// A garbage line is dropped with a diagnostic and parsing continues:
// the surrounding valid lines still reach the event channel, and only
// the terminal Result reports true.
func TestDecodeAndPublishDropsBadLineAndContinues(t *testing.T) {
	a := NewStdioAdapter()
	lines := []string{
		`{"type":"system","subtype":"init","session_id":"S"}`,
		`{garbage}`,
		`{"type":"assistant","session_id":"S","message":{"content":[{"type":"text","text":"Hi"}]}}`,
		`{"type":"result","session_id":"S","subtype":"success","is_error":false,"duration_ms":1,"duration_api_ms":1,"num_turns":1,"result":"Hi"}`,
	}
	var terminals int
	for _, line := range lines {
		if a.decodeAndPublish(line, "r1") {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal line, got %d", terminals)
	}
	var kinds []string
	for i := 0; i < 3; i++ {
		select {
		case evt := <-a.events:
			kinds = append(kinds, string(evt.Message.Kind))
		default:
			t.Fatalf("expected 3 published events, got %d: %v", i, kinds)
		}
	}
	select {
	case evt := <-a.events:
		t.Fatalf("unexpected extra event published for the garbage line: %+v", evt)
	default:
	}
	want := []string{"system_init", "assistant", "result"}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: want %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestStdioAdapterStartFailsWhenCLIMissing(t *testing.T) {
	a := NewStdioAdapter()
	_, err := a.Start(context.Background(), Config{CLIPath: "/no/such/cli-binary-xyz"})
	if err == nil {
		t.Fatal("expected error when cli binary cannot be found")
	}
}

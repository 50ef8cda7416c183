package ndjson

import (
	"errors"
	"strings"
	"testing"
)

func TestFeedSplitsCompleteLines(t *testing.T) {
	f := New()
	lines, err := f.Feed([]byte("{\"a\":1}\n{\"b\":2}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 || lines[0] != `{"a":1}` || lines[1] != `{"b":2}` {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestFeedRetainsPartialLineAcrossCalls(t *testing.T) {
	f := New()
	lines, err := f.Feed([]byte(`{"a":`))
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected no lines yet, got %#v err=%v", lines, err)
	}
	lines, err = f.Feed([]byte("1}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 || lines[0] != `{"a":1}` {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestFeedStripsTrailingCR(t *testing.T) {
	f := New()
	lines, err := f.Feed([]byte("hello\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestFeedLineTooLong(t *testing.T) {
	f := New(WithMaxLineSize(8))
	_, err := f.Feed([]byte("this line is definitely too long"))
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
}

func TestFeedToleratesPartialUTF8AtTail(t *testing.T) {
	f := New(WithMaxLineSize(4))
	multiByte := "é" // 2 bytes in UTF-8
	first := []byte(multiByte)[:1]
	_, err := f.Feed(first)
	if err != nil {
		t.Fatalf("unexpected error on partial rune: %v", err)
	}
	lines, err := f.Feed(append([]byte(multiByte)[1:], '\n'))
	if err != nil {
		t.Fatalf("unexpected error completing rune: %v", err)
	}
	if len(lines) != 1 || lines[0] != multiByte {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestFeedEOFEmitsLeftover(t *testing.T) {
	f := New()
	_, _ = f.Feed([]byte(`{"partial":true}`))
	line, ok, err := f.FeedEOF()
	if err != nil || !ok {
		t.Fatalf("expected leftover line, got ok=%v err=%v", ok, err)
	}
	if line != `{"partial":true}` {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestFeedEOFEmptyBuffer(t *testing.T) {
	f := New()
	_, ok, err := f.FeedEOF()
	if err != nil || ok {
		t.Fatalf("expected no leftover, got ok=%v err=%v", ok, err)
	}
}

func TestFeedEOFStrictReturnsError(t *testing.T) {
	f := New(WithStrictEOF())
	_, _ = f.Feed([]byte("dangling"))
	_, ok, err := f.FeedEOF()
	if ok || !errors.Is(err, ErrPartialLine) {
		t.Fatalf("expected ErrPartialLine, got ok=%v err=%v", ok, err)
	}
}

func TestFeedManyLinesStress(t *testing.T) {
	f := New()
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("x\n")
	}
	lines, err := f.Feed([]byte(sb.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1000 {
		t.Fatalf("expected 1000 lines, got %d", len(lines))
	}
}

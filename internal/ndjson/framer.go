// Package ndjson implements the line-framed parser at the base of the
// protocol stack: it turns an arbitrary byte stream into complete,
// UTF-8-clean, newline-delimited lines.
//
// It is hand-rolled rather than built on bufio.Scanner so that an
// oversized line surfaces as a typed ErrLineTooLong instead of
// bufio.ErrTooLong, and so that a partial UTF-8 sequence at the buffer
// tail is retained across Feed calls instead of being split mid-rune.
package ndjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// DefaultMaxLineSize is the cap applied when a Framer is constructed with
// a non-positive size.
const DefaultMaxLineSize = 1 << 20 // 1 MiB

// ErrLineTooLong is returned by Feed when an unterminated run of bytes
// exceeds MaxLineSize. StdioAdapter treats it as fatal: it fails the
// query and tears the subprocess down rather than continue framing.
var ErrLineTooLong = errors.New("ndjson: line exceeds max line size")

// Framer accumulates bytes from an arbitrary stream and emits complete
// lines. It is not safe for concurrent use; callers serialize Feed calls
// from a single reader goroutine, matching how the Adapter's stdout
// reader loop is the framer's only caller.
type Framer struct {
	buf         []byte
	maxLineSize int
	strictEOF   bool
}

// Option configures a Framer at construction time.
type Option func(*Framer)

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) Option {
	return func(f *Framer) {
		if n > 0 {
			f.maxLineSize = n
		}
	}
}

// WithStrictEOF makes FeedEOF return ErrPartialLine instead of silently
// discarding a non-terminated trailing line.
func WithStrictEOF() Option {
	return func(f *Framer) { f.strictEOF = true }
}

// ErrPartialLine is returned by FeedEOF when strict_eof is set and the
// non-empty, non-newline-terminated leftover is not valid JSON.
var ErrPartialLine = errors.New("ndjson: partial line at eof")

// New constructs a Framer with DefaultMaxLineSize unless overridden.
func New(opts ...Option) *Framer {
	f := &Framer{maxLineSize: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Feed appends b to the internal buffer and returns every complete line
// found so far. A trailing "\r" immediately before "\n" is stripped. The
// incomplete tail (if any) is retained internally, not returned.
func (f *Framer) Feed(b []byte) ([]string, error) {
	f.buf = append(f.buf, b...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.buf, '\n')
		if idx < 0 {
			break
		}
		line := f.buf[:idx]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		f.buf = f.buf[idx+1:]
	}

	if err := f.checkOverflow(); err != nil {
		return lines, err
	}
	return lines, nil
}

// checkOverflow enforces max_line_size against the current unterminated
// run, but only once the buffer tail is not itself a dangling partial
// UTF-8 sequence that more bytes might complete.
func (f *Framer) checkOverflow() error {
	if len(f.buf) <= f.maxLineSize {
		return nil
	}
	// A trailing incomplete rune can make the buffer look longer than it
	// "really" is by at most utf8.UTFMax-1 bytes; give it room to resolve
	// before declaring the line too long.
	if tailIsIncompleteRune(f.buf) && len(f.buf) <= f.maxLineSize+utf8.UTFMax {
		return nil
	}
	return ErrLineTooLong
}

// tailIsIncompleteRune reports whether the final bytes of buf look like
// the prefix of a valid-but-truncated UTF-8 sequence.
func tailIsIncompleteRune(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	n := len(buf)
	for back := 1; back <= utf8.UTFMax && back <= n; back++ {
		b := buf[n-back]
		if utf8.RuneStart(b) {
			return !utf8.FullRune(buf[n-back:])
		}
	}
	return false
}

// FeedEOF signals end of stream. If the remaining buffer holds a
// non-empty, non-newline-terminated leftover that is valid JSON, it is
// returned as a line. Any other leftover is a partial line: it is
// discarded silently and ("", false, nil) is returned, or ErrPartialLine
// is returned when strict_eof is set.
func (f *Framer) FeedEOF() (line string, ok bool, err error) {
	if len(f.buf) == 0 {
		return "", false, nil
	}
	remaining := bytes.TrimSuffix(f.buf, []byte{'\r'})
	f.buf = nil
	if json.Valid(remaining) {
		return string(remaining), true, nil
	}
	if f.strictEOF {
		return "", false, ErrPartialLine
	}
	return "", false, nil
}

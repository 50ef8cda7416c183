package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clisession/clisession/internal/message"
	"github.com/clisession/clisession/internal/transport"
	"github.com/clisession/clisession/internal/transport/transporttest"
)

func newTestSession(t *testing.T, opts ...transporttest.Option) (*Session, *transporttest.TestAdapter) {
	return newTestSessionWithTimeout(t, 2*time.Second, opts...)
}

func newTestSessionWithTimeout(t *testing.T, timeout time.Duration, opts ...transporttest.Option) (*Session, *transporttest.TestAdapter) {
	t.Helper()
	var adapter *transporttest.TestAdapter
	newAdapter := func() transport.Adapter {
		adapter = transporttest.New(opts...)
		return adapter
	}
	s := Open(newAdapter, transport.Config{}, Options{QueryTimeout: timeout})
	t.Cleanup(func() { s.Stop() })
	return s, adapter
}

func TestSendReturnsFinalText(t *testing.T) {
	s, _ := newTestSession(t, transporttest.WithStaticMessages(
		message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "Hi"}}}},
	))
	text, err := s.Send(context.Background(), "hello", transport.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hi" {
		t.Fatalf("expected final text Hi, got %q", text)
	}
}

func TestSessionIDCachedFromFirstMessage(t *testing.T) {
	s, _ := newTestSession(t, transporttest.WithDefaultSessionID("S"), transporttest.WithStaticMessages(
		message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "Hi"}}}},
	))
	if _, err := s.Send(context.Background(), "hello", transport.QueryOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, ok := s.SessionID()
	if !ok || id != "S" {
		t.Fatalf("expected cached session id S, got %q ok=%v", id, ok)
	}
}

func TestClearSessionDropsCachedID(t *testing.T) {
	s, _ := newTestSession(t, transporttest.WithDefaultSessionID("S"), transporttest.WithStaticMessages(
		message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "Hi"}}}},
	))
	if _, err := s.Send(context.Background(), "hello", transport.QueryOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.ClearSession()
	// ClearSession is async (actor command); give the loop a tick.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.SessionID(); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected cached session id cleared")
}

func TestStreamDeliversMessagesInOrderThenCloses(t *testing.T) {
	s, _ := newTestSession(t, transporttest.WithStaticMessages(
		message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "a"}}}},
		message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "b"}}}},
	))
	var kinds []message.Kind
	for msg, err := range s.Stream(context.Background(), "hi", transport.QueryOptions{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		kinds = append(kinds, msg.Kind)
	}
	if len(kinds) != 4 { // init, assistant, assistant, result
		t.Fatalf("expected 4 messages, got %d: %v", len(kinds), kinds)
	}
	if kinds[0] != message.KindSystemInit || kinds[len(kinds)-1] != message.KindResult {
		t.Fatalf("unexpected message ordering: %v", kinds)
	}
}

func TestHealthBeforeFirstQueryReportsNotStarted(t *testing.T) {
	s, _ := newTestSession(t)
	h := s.Health()
	if h.State != "degraded" {
		t.Fatalf("expected degraded health before first query, got %+v", h)
	}
}

// TestTimeoutInterruptsAdapterForQueuedRequests guards against the
// timer handler failing the request before telling the adapter to
// interrupt: if that ordering regresses, the adapter's single-worker
// FIFO stays occupied by the timed-out query and every request behind
// it hangs rather than ever starting.
func TestTimeoutInterruptsAdapterForQueuedRequests(t *testing.T) {
	s, _ := newTestSessionWithTimeout(t, 40*time.Millisecond,
		transporttest.WithEmitDelay(10*time.Second),
		transporttest.WithStaticMessages(
			message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "slow"}}}},
		),
	)

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first", transport.QueryOptions{})
		firstErr <- err
	}()
	select {
	case err := <-firstErr:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout for the first query, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first query's timeout never fired")
	}

	secondErr := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "second", transport.QueryOptions{})
		secondErr <- err
	}()
	select {
	case <-secondErr:
		// A second timeout is expected too (same long emit delay), but
		// it must actually fire rather than hang: that proves the
		// timed-out first query told the adapter to interrupt and
		// freed its FIFO worker for the next request.
	case <-time.After(time.Second):
		t.Fatal("queued request never ran after a timeout: adapter was never told to interrupt the timed-out query")
	}
}

// scriptedAdapter is a minimal Adapter that replays fixed events per
// query, preserving each message's own session_id — unlike
// transporttest.TestAdapter, which uniformly rewrites them, and so
// can't exercise the last-observed-id-wins caching rule.
type scriptedAdapter struct {
	events   chan transport.Event
	msgs     []message.Message
	startErr error

	mu       sync.Mutex
	lastOpts transport.QueryOptions
}

func newScriptedAdapter(msgs []message.Message) *scriptedAdapter {
	return &scriptedAdapter{events: make(chan transport.Event, 64), msgs: msgs}
}

func (a *scriptedAdapter) Start(ctx context.Context, cfg transport.Config) (<-chan transport.Event, error) {
	if a.startErr != nil {
		return nil, a.startErr
	}
	a.events <- transport.Event{Kind: transport.EventKindStatus, Status: transport.StatusReady}
	return a.events, nil
}

func (a *scriptedAdapter) SendQuery(id transport.RequestID, prompt string, opts transport.QueryOptions) error {
	a.mu.Lock()
	a.lastOpts = opts
	a.mu.Unlock()
	a.events <- transport.Event{Kind: transport.EventKindStarted, RequestID: id}
	for _, msg := range a.msgs {
		a.events <- transport.Event{Kind: transport.EventKindMessage, RequestID: id, Message: msg}
	}
	a.events <- transport.Event{Kind: transport.EventKindDone, RequestID: id, DoneReason: transport.DoneCompleted}
	return nil
}

func (a *scriptedAdapter) Interrupt() error         { return nil }
func (a *scriptedAdapter) Health() transport.Health { return transport.Healthy() }
func (a *scriptedAdapter) Stop() error              { return nil }

func (a *scriptedAdapter) sentResumeID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastOpts.ResumeSessionID
}

// TestLastObservedSessionIDWins covers the resume-id update rule: the
// CLI may mint a new id mid-conversation (e.g. after compaction), and
// the cached resume id must track the most recent one observed, not the
// first.
func TestLastObservedSessionIDWins(t *testing.T) {
	adapter := newScriptedAdapter([]message.Message{
		{Kind: message.KindSystemInit, SessionID: "A", Init: &message.SystemInit{Model: "m"}},
		{Kind: message.KindSystemCompactBoundary, SessionID: "B", CompactMetadata: &message.CompactMetadata{Trigger: "auto", PreTokens: 100}},
		{Kind: message.KindResult, SessionID: "B", Result: "done"},
	})
	s := Open(func() transport.Adapter { return adapter }, transport.Config{}, Options{QueryTimeout: 2 * time.Second})
	t.Cleanup(func() { s.Stop() })

	if _, err := s.Send(context.Background(), "hello", transport.QueryOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, _ := s.SessionID(); id != "B" {
		t.Fatalf("expected cached id B after compact boundary, got %q", id)
	}

	// The next query must carry the updated resume id to the adapter.
	if _, err := s.Send(context.Background(), "again", transport.QueryOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := adapter.sentResumeID(); got != "B" {
		t.Fatalf("expected second query to resume B, got %q", got)
	}
}

// TestCompactBoundaryPassThrough checks a compact boundary arriving
// between two assistant messages is delivered in order on the request
// channel, not swallowed by the id-caching path.
func TestCompactBoundaryPassThrough(t *testing.T) {
	adapter := newScriptedAdapter([]message.Message{
		{Kind: message.KindAssistant, SessionID: "A", Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "one"}}}},
		{Kind: message.KindSystemCompactBoundary, SessionID: "B", CompactMetadata: &message.CompactMetadata{Trigger: "manual"}},
		{Kind: message.KindAssistant, SessionID: "B", Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "two"}}}},
		{Kind: message.KindResult, SessionID: "B", Result: "onetwo"},
	})
	s := Open(func() transport.Adapter { return adapter }, transport.Config{}, Options{QueryTimeout: 2 * time.Second})
	t.Cleanup(func() { s.Stop() })

	var kinds []message.Kind
	for msg, err := range s.Stream(context.Background(), "hi", transport.QueryOptions{}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		kinds = append(kinds, msg.Kind)
	}
	want := []message.Kind{message.KindAssistant, message.KindSystemCompactBoundary, message.KindAssistant, message.KindResult}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("message %d: want %v, got %v (full: %v)", i, want[i], kinds[i], kinds)
		}
	}
}

// TestProvisioningFailureFailsEveryRequest: once Start fails, the first
// and every subsequent request complete with ProvisioningFailedError
// until the Session is reconstructed.
func TestProvisioningFailureFailsEveryRequest(t *testing.T) {
	adapter := newScriptedAdapter(nil)
	adapter.startErr = errors.New("no workspace")
	s := Open(func() transport.Adapter { return adapter }, transport.Config{}, Options{QueryTimeout: 2 * time.Second})
	t.Cleanup(func() { s.Stop() })

	for i := 0; i < 2; i++ {
		_, err := s.Send(context.Background(), "hello", transport.QueryOptions{})
		var provErr *ProvisioningFailedError
		if !errors.As(err, &provErr) {
			t.Fatalf("request %d: expected ProvisioningFailedError, got %v", i, err)
		}
	}
}

// TestInterruptTargetsOnlyInFlightRequest guards against Interrupt
// acting on whichever request was most recently dispatched rather than
// the one the adapter is actually executing: with two requests
// submitted back to back, the adapter serializes them FIFO, so the
// second is still queued (not yet in flight) when Interrupt fires.
func TestInterruptTargetsOnlyInFlightRequest(t *testing.T) {
	s, _ := newTestSessionWithTimeout(t, 5*time.Second,
		transporttest.WithEmitDelay(200*time.Millisecond),
		transporttest.WithStaticMessages(
			message.Message{Kind: message.KindAssistant, Inner: message.InnerMessage{Content: []message.ContentBlock{{Type: message.ContentBlockText, Text: "x"}}}},
		),
	)

	aErr := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "A", transport.QueryOptions{})
		aErr <- err
	}()
	// Let A actually start (become in-flight at the adapter) before B
	// is submitted behind it.
	time.Sleep(50 * time.Millisecond)

	bErr := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "B", transport.QueryOptions{})
		bErr <- err
	}()
	// B is now waiting in the adapter's FIFO behind A, not yet in flight.
	time.Sleep(20 * time.Millisecond)

	if err := s.Interrupt(); err != nil {
		t.Fatalf("unexpected error from Interrupt: %v", err)
	}

	select {
	case err := <-aErr:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("expected the in-flight request to be interrupted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight request never closed after Interrupt")
	}

	select {
	case err := <-bErr:
		if err != nil {
			t.Fatalf("queued request should have run to completion untouched, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued request never completed: Interrupt targeted it instead of the in-flight request")
	}
}

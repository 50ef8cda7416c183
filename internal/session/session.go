// Package session implements the Session: the long-lived supervised
// process that owns the Adapter, the request table, the cached
// session-resumption id, and the outbound queue. It is modeled as a
// single-threaded actor: one goroutine draining a command channel and
// the adapter's event channel, processing one thing to completion
// before the next, rather than guarding shared state with locks.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clisession/clisession/internal/message"
	"github.com/clisession/clisession/internal/transport"
)

// DefaultQueryTimeout is the per-query timeout applied when Options
// doesn't override it.
const DefaultQueryTimeout = 300 * time.Second

// ErrStopped is returned by Send, Stream, Interrupt and InterruptRequest
// once Stop has been called.
var ErrStopped = errors.New("session: stopped")

// ErrTimeout closes a request's channel when its per-query timer fires.
var ErrTimeout = errors.New("session: query timeout")

// ErrInterrupted closes a request's channel on consumer-initiated or
// Session.Interrupt cancellation.
var ErrInterrupted = errors.New("session: interrupted")

// ProvisioningFailedError wraps an adapter status error observed during
// provisioning; every queued and subsequent request fails with it until
// the Session is reconstructed.
type ProvisioningFailedError struct{ Reason error }

func (e *ProvisioningFailedError) Error() string {
	return fmt.Sprintf("session: provisioning failed: %v", e.Reason)
}
func (e *ProvisioningFailedError) Unwrap() error { return e.Reason }

// AdapterExitError is delivered to every in-flight and queued request
// when the Adapter exits abnormally.
type AdapterExitError struct{ Reason error }

func (e *AdapterExitError) Error() string { return fmt.Sprintf("session: adapter exited: %v", e.Reason) }
func (e *AdapterExitError) Unwrap() error { return e.Reason }

// ClaudeError surfaces a Result{is_error:true} from the CLI itself
// as a typed error rather than an opaque string so callers can branch
// on Subtype without parsing Error().
type ClaudeError struct {
	Subtype message.ResultSubtype
	Message string
}

func (e *ClaudeError) Error() string {
	return fmt.Sprintf("session: claude_error(%s): %s", e.Subtype, e.Message)
}

// NewAdapter constructs a fresh, unstarted Adapter. The Session calls it
// exactly once, lazily, on the first submitted query.
type NewAdapter func() transport.Adapter

// Options configures a Session at construction.
type Options struct {
	QueryTimeout time.Duration
}

// Session is the caller-facing engine owning one Adapter lifecycle.
type Session struct {
	newAdapter NewAdapter
	cfg        transport.Config
	timeout    time.Duration

	commands chan any
	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool

	// doneCh closes once the actor goroutine has returned, so Stop can
	// observe that teardown actually ran even if the buffered commands
	// channel happened to be full when cmdStop was sent.
	doneCh chan struct{}

	cachedMu  sync.RWMutex
	cachedSID string
}

// Open constructs a Session. The adapter is not started until the first
// query is submitted.
func Open(newAdapter NewAdapter, cfg transport.Config, opts Options) *Session {
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	s := &Session{
		newAdapter: newAdapter,
		cfg:        cfg,
		timeout:    timeout,
		commands:   make(chan any, 32),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go s.run()
	return s
}

// --- actor-internal state, touched only inside run() ---

type requestState struct {
	id     transport.RequestID
	ch     chan streamItem
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

type streamItem struct {
	msg message.Message
	err error
}

type pendingSubmission struct {
	id     transport.RequestID
	prompt string
	opts   transport.QueryOptions
}

type actor struct {
	s        *Session
	adapter  transport.Adapter
	events   <-chan transport.Event
	status   transport.Status
	provFail error
	requests map[transport.RequestID]*requestState
	queue    []pendingSubmission
	inFlight transport.RequestID
}

// --- commands sent from caller goroutines into the actor loop ---

type cmdSubmit struct {
	ctx    context.Context
	prompt string
	opts   transport.QueryOptions
	reply  chan submitReply
}

type submitReply struct {
	ch  chan streamItem
	id  transport.RequestID
	err error
}

type cmdInterrupt struct{ id transport.RequestID } // empty id = current in-flight

type cmdClearSession struct{}

type cmdHealth struct{ reply chan transport.Health }

type cmdStop struct{}

type cmdTimerFired struct{ id transport.RequestID }

func (s *Session) run() {
	a := &actor{s: s, requests: map[transport.RequestID]*requestState{}}
	defer close(s.doneCh)
	defer a.teardown()

	for {
		var events <-chan transport.Event
		if a.adapter != nil {
			events = a.events
		}
		select {
		case cmd := <-s.commands:
			if !a.handleCommand(cmd) {
				return
			}
		case evt, ok := <-events:
			if !ok {
				a.onAdapterExit(errors.New("adapter event channel closed"))
				return
			}
			a.handleAdapterEvent(evt)
		case <-s.stopCh:
			// Stop was called but cmdStop didn't make it onto a full
			// commands channel; stopCh closing is itself sufficient
			// signal to tear down.
			return
		}
	}
}

func (a *actor) handleCommand(cmd any) bool {
	switch c := cmd.(type) {
	case cmdSubmit:
		a.submit(c)
	case cmdInterrupt:
		a.interrupt(c.id)
	case cmdClearSession:
		a.s.setCachedSessionID("")
	case cmdHealth:
		if a.adapter == nil {
			c.reply <- transport.Degraded("not started")
		} else {
			c.reply <- a.adapter.Health()
		}
	case cmdStop:
		return false
	case cmdTimerFired:
		// Signal the adapter first, while c.id's requestState (and the
		// knowledge of whether it's the one actually in flight) still
		// exists: failRequest below immediately closes and deletes it,
		// which would make the in-flight check in interrupt() a no-op
		// if it ran afterwards. The caller-visible error stays
		// ErrTimeout, not ErrInterrupted — this call only triggers the
		// adapter-side interrupt, it doesn't touch the request channel.
		a.signalAdapterInterrupt(c.id)
		a.failRequest(c.id, ErrTimeout)
	}
	return true
}

// ensureAdapter lazily starts the adapter on the first submitted query.
// firstOpts, the triggering query's per-call overrides, are folded into
// the spawn-time Config: once the subprocess is running, argv-level
// settings (model, system prompt, allowed tools, permission mode) are
// fixed for its whole lifetime, so the only chance to honor a caller's
// override for those fields is the call that causes the spawn.
func (a *actor) ensureAdapter(firstOpts transport.QueryOptions) error {
	if a.adapter != nil {
		if a.provFail != nil {
			return &ProvisioningFailedError{Reason: a.provFail}
		}
		return nil
	}
	a.adapter = a.s.newAdapter()
	cfg := a.s.cfg
	cfg.ResumeSessionID = a.s.getCachedSessionID()
	if firstOpts.Model != "" {
		cfg.Model = firstOpts.Model
	}
	if firstOpts.SystemPrompt != "" {
		cfg.SystemPrompt = firstOpts.SystemPrompt
	}
	if len(firstOpts.AllowedTools) > 0 {
		cfg.AllowedTools = firstOpts.AllowedTools
	}
	if len(firstOpts.AddDirs) > 0 {
		cfg.AddDirs = firstOpts.AddDirs
	}
	if firstOpts.PermissionMode != "" {
		cfg.PermissionMode = firstOpts.PermissionMode
	}
	events, err := a.adapter.Start(context.Background(), cfg)
	if err != nil {
		a.provFail = err
		return &ProvisioningFailedError{Reason: err}
	}
	a.events = events
	a.status = transport.StatusProvisioning
	return nil
}

func (a *actor) submit(c cmdSubmit) {
	if err := a.ensureAdapter(c.opts); err != nil {
		c.reply <- submitReply{err: err}
		return
	}
	id := transport.RequestID(uuid.NewString())
	rs := &requestState{id: id, ch: make(chan streamItem, 64), done: make(chan struct{})}
	rs.timer = time.AfterFunc(a.s.timeout, func() {
		select {
		case a.s.commands <- cmdTimerFired{id: id}:
		case <-a.s.stopCh:
		}
	})
	a.requests[id] = rs
	c.reply <- submitReply{ch: rs.ch, id: id}

	if c.ctx != nil {
		go func() {
			select {
			case <-c.ctx.Done():
				select {
				case a.s.commands <- cmdInterrupt{id: id}:
				case <-a.s.stopCh:
				}
			case <-rs.done:
			}
		}()
	}

	if a.status != transport.StatusReady {
		a.queue = append(a.queue, pendingSubmission{id: id, prompt: c.prompt, opts: c.opts})
		return
	}
	a.dispatch(id, c.prompt, c.opts)
}

// dispatch hands id off to the adapter. Accepting it here only means the
// adapter queued it — the default adapter buffers up to 256 queries
// internally and reports busy only when that buffer is full
// (transport.Adapter's SendQuery doc comment) — so a.inFlight is
// deliberately NOT set here. It is set only
// when the adapter reports EventKindStarted for id, which is the adapter
// actually dequeuing and beginning to execute it.
func (a *actor) dispatch(id transport.RequestID, prompt string, opts transport.QueryOptions) {
	if opts.ResumeSessionID == "" {
		opts.ResumeSessionID = a.s.getCachedSessionID()
	}
	if err := a.adapter.SendQuery(id, prompt, opts); err != nil {
		if errors.Is(err, transport.ErrBusy) || errors.Is(err, transport.ErrNotReady) {
			a.queue = append(a.queue, pendingSubmission{id: id, prompt: prompt, opts: opts})
			return
		}
		a.failRequest(id, err)
		return
	}
}

func (a *actor) drainQueue() {
	pending := a.queue
	a.queue = nil
	for _, p := range pending {
		if _, ok := a.requests[p.id]; !ok {
			continue // cancelled while queued
		}
		a.dispatch(p.id, p.prompt, p.opts)
	}
}

func (a *actor) handleAdapterEvent(evt transport.Event) {
	switch evt.Kind {
	case transport.EventKindStatus:
		a.status = evt.Status
		if evt.Status == transport.StatusError {
			a.onProvisioningFailed(evt.StatusErr)
			return
		}
		if evt.Status == transport.StatusReady {
			a.drainQueue()
		}
	case transport.EventKindStarted:
		a.inFlight = evt.RequestID
	case transport.EventKindMessage:
		if evt.Message.SessionID != "" {
			a.s.setCachedSessionID(evt.Message.SessionID)
		}
		a.deliver(evt.RequestID, streamItem{msg: evt.Message})
	case transport.EventKindError:
		a.deliver(evt.RequestID, streamItem{err: evt.Err})
	case transport.EventKindDone:
		a.finishRequest(evt.RequestID, evt.DoneReason, evt.Err)
	}
}

func (a *actor) deliver(id transport.RequestID, item streamItem) {
	rs, ok := a.requests[id]
	if !ok {
		slog.Warn("dropping stray adapter message for unknown request", "request_id", id)
		return
	}
	if rs.closed {
		return
	}
	select {
	case rs.ch <- item:
	default:
		slog.Warn("request channel full, dropping oldest semantics not supported; blocking send instead")
		rs.ch <- item
	}
}

func (a *actor) finishRequest(id transport.RequestID, reason transport.DoneReason, err error) {
	rs, ok := a.requests[id]
	if !ok {
		return
	}
	if err != nil && reason == transport.DoneError {
		select {
		case rs.ch <- streamItem{err: err}:
		default:
		}
	}
	a.closeRequest(rs)
	if a.inFlight == id {
		a.inFlight = ""
	}
}

func (a *actor) failRequest(id transport.RequestID, err error) {
	rs, ok := a.requests[id]
	if !ok {
		return
	}
	select {
	case rs.ch <- streamItem{err: err}:
	default:
	}
	a.closeRequest(rs)
	if a.inFlight == id {
		a.inFlight = ""
	}
}

func (a *actor) closeRequest(rs *requestState) {
	if rs.closed {
		return
	}
	rs.closed = true
	rs.timer.Stop()
	close(rs.ch)
	close(rs.done)
	delete(a.requests, rs.id)
}

// signalAdapterInterrupt tells the adapter to cancel whatever it is
// currently executing, but only when id is the request the adapter
// itself has reported (via EventKindStarted) as in flight, so a queued
// but not-yet-started request is never mistaken for the one running
// inside the adapter. It never touches a.requests or a request's
// channel, so callers can use it before removing id's requestState
// (e.g. cmdTimerFired) without losing the distinction between an
// ErrInterrupted and an ErrTimeout delivered to the consumer.
func (a *actor) signalAdapterInterrupt(id transport.RequestID) {
	if id == "" || a.adapter == nil {
		return
	}
	if id == a.inFlight {
		a.adapter.Interrupt()
		a.inFlight = ""
	}
}

func (a *actor) interrupt(id transport.RequestID) {
	if id == "" {
		id = a.inFlight
	}
	if id == "" {
		return
	}
	a.signalAdapterInterrupt(id)
	if rs, ok := a.requests[id]; ok {
		if !rs.closed {
			select {
			case rs.ch <- streamItem{err: ErrInterrupted}:
			default:
			}
			a.closeRequest(rs)
		}
		return
	}
	// Not in the request table (already closed by a timeout or failure)
	// but still waiting in the local queue: just drop the entry.
	for i, p := range a.queue {
		if p.id == id {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			return
		}
	}
}

func (a *actor) onProvisioningFailed(reason error) {
	a.provFail = reason
	err := &ProvisioningFailedError{Reason: reason}
	for _, rs := range a.requests {
		a.failRequest(rs.id, err)
	}
	for _, p := range a.queue {
		if rs, ok := a.requests[p.id]; ok {
			a.failRequest(rs.id, err)
		}
	}
	a.queue = nil
}

func (a *actor) onAdapterExit(reason error) {
	err := &AdapterExitError{Reason: reason}
	for _, rs := range a.requests {
		a.failRequest(rs.id, err)
	}
	a.queue = nil
}

func (a *actor) teardown() {
	if a.adapter != nil {
		a.adapter.Stop()
	}
	for _, rs := range a.requests {
		a.failRequest(rs.id, ErrStopped)
	}
}

func (s *Session) getCachedSessionID() string {
	s.cachedMu.RLock()
	defer s.cachedMu.RUnlock()
	return s.cachedSID
}

func (s *Session) setCachedSessionID(id string) {
	s.cachedMu.Lock()
	s.cachedSID = id
	s.cachedMu.Unlock()
}

// SessionID returns the cached resume id, if any has been observed.
func (s *Session) SessionID() (string, bool) {
	id := s.getCachedSessionID()
	return id, id != ""
}

// ClearSession drops the cached resume id; the next query starts fresh.
func (s *Session) ClearSession() {
	if s.stopped.Load() {
		return
	}
	select {
	case s.commands <- cmdClearSession{}:
	case <-s.stopCh:
	}
}

// Stream submits prompt and returns a lazy sequence of Message; it
// yields a final (zero Message, err) pair on error or timeout and then
// stops, so a consumer can range over it directly.
func (s *Session) Stream(ctx context.Context, prompt string, overrides transport.QueryOptions) iter.Seq2[message.Message, error] {
	return func(yield func(message.Message, error) bool) {
		if s.stopped.Load() {
			yield(message.Message{}, ErrStopped)
			return
		}
		reply := make(chan submitReply, 1)
		select {
		case s.commands <- cmdSubmit{ctx: ctx, prompt: prompt, opts: overrides, reply: reply}:
		case <-s.stopCh:
			yield(message.Message{}, ErrStopped)
			return
		}
		r := <-reply
		if r.err != nil {
			yield(message.Message{}, r.err)
			return
		}
		for item := range r.ch {
			if !yield(item.msg, item.err) {
				s.cancelRequest(r.id)
				return
			}
			if item.err != nil {
				return
			}
		}
	}
}

func (s *Session) cancelRequest(id transport.RequestID) {
	select {
	case s.commands <- cmdInterrupt{id: id}:
	case <-s.stopCh:
	}
}

// Send submits prompt and blocks for the final result text.
func (s *Session) Send(ctx context.Context, prompt string, overrides transport.QueryOptions) (string, error) {
	var finalText string
	var resultErr error
	for msg, err := range s.Stream(ctx, prompt, overrides) {
		if err != nil {
			return "", err
		}
		if msg.Kind == message.KindResult {
			finalText = msg.Result
			if msg.IsError {
				resultErr = &ClaudeError{Subtype: msg.ResultSubtype, Message: msg.Result}
			}
		}
	}
	return finalText, resultErr
}

// Interrupt cancels the currently in-flight request; queued requests
// are unaffected.
func (s *Session) Interrupt() error {
	if s.stopped.Load() {
		return ErrStopped
	}
	select {
	case s.commands <- cmdInterrupt{}:
	case <-s.stopCh:
	}
	return nil
}

// InterruptRequest cancels one specific request by id.
func (s *Session) InterruptRequest(id transport.RequestID) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	select {
	case s.commands <- cmdInterrupt{id: id}:
	case <-s.stopCh:
	}
	return nil
}

// Health delegates to the adapter, or reports "not started" if no query
// has been submitted yet.
func (s *Session) Health() transport.Health {
	if s.stopped.Load() {
		return transport.Unhealthy("stopped")
	}
	reply := make(chan transport.Health, 1)
	select {
	case s.commands <- cmdHealth{reply: reply}:
	case <-s.stopCh:
		return transport.Unhealthy("stopped")
	}
	select {
	case h := <-reply:
		return h
	case <-s.stopCh:
		return transport.Unhealthy("stopped")
	}
}

// Stop gracefully shuts down the Session and its adapter, blocking until
// teardown has completed. Idempotent.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		select {
		case s.commands <- cmdStop{}:
		default:
		}
		close(s.stopCh)
	})
	<-s.doneCh
	return nil
}

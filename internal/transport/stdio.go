package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clisession/clisession/internal/message"
	"github.com/clisession/clisession/internal/ndjson"
	"github.com/clisession/clisession/internal/protocol"
)

const stdoutReadChunk = 32 * 1024

// defaultInterruptGrace is how long StdioAdapter waits after sending the
// platform interrupt before killing the subprocess, when Config doesn't
// set a QueryTimeout to use as the grace period instead.
const defaultInterruptGrace = 300 * time.Second

type queuedQuery struct {
	requestID RequestID
	prompt    string
	opts      QueryOptions
}

// StdioAdapter is the default Adapter implementation. It spawns the CLI
// binary exactly once, in bidirectional stream-json mode, and keeps the
// subprocess alive across every query the Session submits: stdin stays
// open, one NDJSON user frame is written per query, and the reader loop
// tags each decoded output line to whichever request is currently in
// flight. Queries never run the CLI in one-shot --print mode with a
// single argv prompt; that would make mid-conversation cancellation and
// subprocess reuse impossible.
type StdioAdapter struct {
	cfg     Config
	events  chan Event
	queue   chan queuedQuery
	stopCh  chan struct{}
	stopped atomic.Bool
	closeEventsOnce sync.Once

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	framer *ndjson.Framer

	mu          sync.Mutex
	status      Status
	workDir     string
	ownsWorkDir bool
	currentReq  RequestID
	interruptCh chan struct{}
	pendingLines []string
}

// NewStdioAdapter constructs an unstarted adapter.
func NewStdioAdapter() *StdioAdapter {
	return &StdioAdapter{
		events: make(chan Event, 64),
		queue:  make(chan queuedQuery, 256),
		stopCh: make(chan struct{}),
		framer: ndjson.New(),
	}
}

func (a *StdioAdapter) Start(ctx context.Context, cfg Config) (<-chan Event, error) {
	a.cfg = cfg
	path := cfg.CLIPath
	if path == "" {
		path = "claude"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCLINotFound, path)
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		tmp, err := os.MkdirTemp("", "clisession-*")
		if err != nil {
			return nil, fmt.Errorf("creating workspace: %w", err)
		}
		workDir = tmp
		a.ownsWorkDir = true
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	a.workDir = workDir
	a.cfg.CLIPath = path

	a.publish(Event{Kind: EventKindStatus, Status: StatusProvisioning})

	args := buildArgs(a.cfg, QueryOptions{})
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = workDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		a.cleanupWorkDir()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		a.cleanupWorkDir()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		a.cleanupWorkDir()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		a.cleanupWorkDir()
		return nil, fmt.Errorf("starting cli: %w", err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.stdout = stdout
	a.setStatus(StatusReady)

	go drainStderr(stderr)
	go a.run(ctx)

	a.publish(Event{Kind: EventKindStatus, Status: StatusReady})
	return a.events, nil
}

// run is the adapter's sole dispatch loop for the lifetime of the
// subprocess: it dequeues one query at a time and serializes it through
// the shared stdin/stdout pipes, matching the CLI's single-request-at-a-
// time contract.
func (a *StdioAdapter) run(ctx context.Context) {
	for {
		select {
		case q := <-a.queue:
			if a.stopped.Load() {
				return
			}
			a.runQuery(ctx, q)
		case <-a.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *StdioAdapter) SendQuery(requestID RequestID, prompt string, opts QueryOptions) error {
	if a.stopped.Load() {
		return ErrAlreadyStopped
	}
	if a.getStatus() == StatusProvisioning {
		return ErrNotReady
	}
	select {
	case a.queue <- queuedQuery{requestID: requestID, prompt: prompt, opts: opts}:
		return nil
	default:
		return ErrBusy
	}
}

func (a *StdioAdapter) runQuery(ctx context.Context, q queuedQuery) {
	a.mu.Lock()
	a.currentReq = q.requestID
	a.interruptCh = make(chan struct{})
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.currentReq = ""
		a.interruptCh = nil
		a.mu.Unlock()
	}()

	// This is the moment q actually becomes the in-flight query, as
	// opposed to merely having been accepted into the queue by
	// SendQuery. The Session tracks "currently in flight" from this
	// event rather than from SendQuery's return.
	a.publish(Event{Kind: EventKindStarted, RequestID: q.requestID})

	frame, err := buildInputFrame(q.prompt, a.cfg, q.opts)
	if err != nil {
		a.finishWithError(q.requestID, fmt.Errorf("encoding input frame: %w", err))
		return
	}
	if _, err := a.stdin.Write(frame); err != nil {
		a.finishWithError(q.requestID, fmt.Errorf("writing to cli stdin: %w", err))
		a.crashExit(fmt.Errorf("stdin write failed: %w", err))
		return
	}

	grace := a.cfg.QueryTimeout
	if grace <= 0 {
		grace = defaultInterruptGrace
	}

	sawResult := atomic.Bool{}
	readErrCh := make(chan error, 1)
	go func() {
		readErrCh <- a.readUntilResult(q.requestID, &sawResult)
	}()

	a.mu.Lock()
	interruptCh := a.interruptCh
	a.mu.Unlock()

	select {
	case <-interruptCh:
		if a.cmd.Process != nil {
			a.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-readErrCh:
			a.publish(Event{Kind: EventKindDone, RequestID: q.requestID, DoneReason: DoneCancelled})
		case <-time.After(grace):
			a.publish(Event{Kind: EventKindDone, RequestID: q.requestID, DoneReason: DoneCancelled})
			a.crashExit(fmt.Errorf("subprocess did not exit within grace period after interrupt"))
		}
	case readErr := <-readErrCh:
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				readErr = a.exitError()
			}
			a.finishWithError(q.requestID, readErr)
			a.crashExit(readErr)
			return
		}
		a.publish(Event{Kind: EventKindDone, RequestID: q.requestID, DoneReason: DoneCompleted})
	}
}

// readUntilResult reads decoded lines for exactly one query's turn,
// publishing each as a message Event addressed to requestID, and
// returns once a terminal Result line is observed (or the stream ends
// unexpectedly). Any lines decoded past the Result in the same read
// chunk are stashed for the next query's call, since the protocol only
// interleaves a new response after the current one's Result.
func (a *StdioAdapter) readUntilResult(requestID RequestID, sawResult *atomic.Bool) error {
	a.mu.Lock()
	pending := a.pendingLines
	a.pendingLines = nil
	a.mu.Unlock()
	for _, line := range pending {
		if a.decodeAndPublish(line, requestID) {
			sawResult.Store(true)
			return nil
		}
	}

	buf := make([]byte, stdoutReadChunk)
	for {
		n, readErr := a.stdout.Read(buf)
		if n > 0 {
			lines, feedErr := a.framer.Feed(buf[:n])
			for i, line := range lines {
				if a.decodeAndPublish(line, requestID) {
					sawResult.Store(true)
					a.mu.Lock()
					a.pendingLines = append([]string(nil), lines[i+1:]...)
					a.mu.Unlock()
					return nil
				}
			}
			if feedErr != nil {
				return feedErr
			}
		}
		if readErr == io.EOF {
			if line, ok, err := a.framer.FeedEOF(); err == nil && ok {
				a.decodeAndPublish(line, requestID)
			}
			return io.EOF
		}
		if readErr != nil {
			return readErr
		}
	}
}

// decodeAndPublish decodes one line and publishes it as a message Event.
// It reports whether the decoded message was the terminal Result.
func (a *StdioAdapter) decodeAndPublish(line string, requestID RequestID) bool {
	if line == "" {
		return false
	}
	msg, err := protocol.Decode([]byte(line))
	if err != nil {
		slog.Warn("dropping undecodable cli line", "error", err, "request_id", requestID)
		return false
	}
	a.publish(Event{Kind: EventKindMessage, RequestID: requestID, Message: msg})
	return msg.Kind == message.KindResult
}

func (a *StdioAdapter) finishWithError(requestID RequestID, err error) {
	a.publish(Event{Kind: EventKindError, RequestID: requestID, Err: err})
	a.publish(Event{Kind: EventKindDone, RequestID: requestID, DoneReason: DoneError, Err: err})
}

// exitError reaps a subprocess whose stdout reached EOF and wraps its
// exit status, so unterminated requests fail with the actual status
// rather than a bare EOF.
func (a *StdioAdapter) exitError() error {
	waitErr := a.cmd.Wait()
	code := 0
	if a.cmd.ProcessState != nil {
		code = a.cmd.ProcessState.ExitCode()
	}
	if code == 0 && waitErr != nil {
		return fmt.Errorf("cli exited unexpectedly: %w", waitErr)
	}
	return &SubprocessExitError{ExitCode: code}
}

// crashExit tears down a subprocess that died or became unresponsive
// mid-conversation. This is not scoped to one request: the whole
// adapter is considered gone, so its event channel closes and the
// Session propagates AdapterExit to every remaining in-flight and
// queued request.
func (a *StdioAdapter) crashExit(reason error) {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	if a.cmd.Process != nil {
		a.cmd.Process.Kill()
	}
	a.cmd.Wait()
	a.drainQueueWithError(reason)
	a.cleanupWorkDir()
	a.closeEvents()
}

func (a *StdioAdapter) drainQueueWithError(reason error) {
	for {
		select {
		case q := <-a.queue:
			a.finishWithError(q.requestID, reason)
		default:
			return
		}
	}
}

func drainStderr(stderr io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			slog.Debug("cli stderr", "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func buildInputFrame(prompt string, cfg Config, opts QueryOptions) ([]byte, error) {
	parentToolUseID := opts.ParentToolUseID
	resumeID := cfg.ResumeSessionID
	if opts.ResumeSessionID != "" {
		resumeID = opts.ResumeSessionID
	}
	frame := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role":    "user",
			"content": prompt,
		},
	}
	if resumeID != "" {
		frame["session_id"] = resumeID
	}
	if parentToolUseID != "" {
		frame["parent_tool_use_id"] = parentToolUseID
	}
	buf, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

func (a *StdioAdapter) Interrupt() error {
	a.mu.Lock()
	ch := a.interruptCh
	a.mu.Unlock()
	if ch == nil {
		return nil // nothing in flight
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
	return nil
}

func (a *StdioAdapter) Health() Health {
	if a.stopped.Load() {
		return Unhealthy("stopped")
	}
	switch a.getStatus() {
	case StatusReady:
		return Healthy()
	case StatusProvisioning:
		return Degraded("provisioning")
	default:
		return Unhealthy("adapter error")
	}
}

// Stop gracefully shuts down the adapter: close stdin first and give
// the CLI a grace period to exit on its own, only killing it if it
// doesn't.
func (a *StdioAdapter) Stop() error {
	if !a.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(a.stopCh)
	a.mu.Lock()
	if a.interruptCh != nil {
		select {
		case <-a.interruptCh:
		default:
			close(a.interruptCh)
		}
	}
	a.mu.Unlock()

	a.drainQueueWithError(ErrAlreadyStopped)

	if a.stdin != nil {
		a.stdin.Close()
	}
	if a.cmd != nil && a.cmd.Process != nil {
		waitCh := make(chan struct{})
		go func() {
			a.cmd.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-time.After(defaultInterruptGrace):
			a.cmd.Process.Kill()
			<-waitCh
		}
	}
	a.cleanupWorkDir()
	a.closeEvents()
	return nil
}

// cleanupWorkDir removes the scratch workspace, but only when this
// adapter created it; a caller-provided Config.WorkDir is left alone.
func (a *StdioAdapter) cleanupWorkDir() {
	a.mu.Lock()
	workDir := a.workDir
	owns := a.ownsWorkDir
	a.workDir = ""
	a.mu.Unlock()
	if workDir != "" && owns {
		os.RemoveAll(workDir)
	}
}

func (a *StdioAdapter) closeEvents() {
	a.closeEventsOnce.Do(func() {
		close(a.events)
	})
}

func (a *StdioAdapter) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *StdioAdapter) getStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *StdioAdapter) publish(evt Event) {
	select {
	case a.events <- evt:
	case <-a.stopCh:
	}
}

var _ Adapter = (*StdioAdapter)(nil)

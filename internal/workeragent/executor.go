// Package workeragent is the separately runnable process the worker
// manager launches (locally or over SSH): it exposes the HTTP API of §4.3
// and executes commands under a pseudo-terminal so their output is line-
// buffered rather than block-buffered, streaming it into the broker.
package workeragent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"github.com/geocoder89/dispatch/internal/broker"
	"github.com/mattn/go-shellwords"
)

var (
	ErrAtCapacity      = errors.New("running-process count at max_jobs")
	ErrAlreadyRunning  = errors.New("execution_id is already running")
	ErrExecutionUnknown = errors.New("unknown execution_id")
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type execution struct {
	id        string
	cmd       *exec.Cmd
	ptmx      *os.File
	pid       int
	status    Status
	exitCode  int
	startedAt time.Time
}

// Callback is how the executor reports a terminal status to the backend;
// implemented by an HTTP POST to /api/node/status in production.
type Callback interface {
	Post(ctx context.Context, executionID string, status Status, exitCode *int, errMsg string) error
}

type Executor struct {
	mu         sync.Mutex
	maxJobs    int
	executions map[string]*execution

	broker   *broker.Client
	callback Callback
}

func NewExecutor(maxJobs int, b *broker.Client, callback Callback) *Executor {
	return &Executor{
		maxJobs:    maxJobs,
		executions: make(map[string]*execution),
		broker:     b,
		callback:   callback,
	}
}

func (e *Executor) SetMaxJobs(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxJobs = n
}

func (e *Executor) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ex := range e.executions {
		if ex.status == StatusRunning {
			n++
		}
	}
	return n
}

func (e *Executor) MaxJobs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxJobs
}

// Execute tokenizes command (shell-style, quote-aware), appends args as
// additional argv elements, spawns the child on a PTY slave with a fresh
// session, and starts a non-blocking reader that streams completed lines
// to the broker. Returns the spawned pid.
func (e *Executor) Execute(ctx context.Context, executionID, command string, args []string) (int, error) {
	e.mu.Lock()
	if len(e.executions) >= 0 && e.runningCountLocked() >= e.maxJobs {
		e.mu.Unlock()
		return 0, ErrAtCapacity
	}
	if ex, ok := e.executions[executionID]; ok && ex.status == StatusRunning {
		e.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	e.mu.Unlock()

	parser := shellwords.NewParser()
	argv, err := parser.Parse(command)
	if err != nil {
		return 0, fmt.Errorf("tokenize command: %w", err)
	}
	if len(argv) == 0 {
		return 0, fmt.Errorf("empty command")
	}
	argv = append(argv, args...)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 0, fmt.Errorf("Failed to start command: %w", err)
	}

	ex := &execution{
		id:        executionID,
		cmd:       cmd,
		ptmx:      ptmx,
		pid:       cmd.Process.Pid,
		status:    StatusRunning,
		startedAt: time.Now(),
	}

	e.mu.Lock()
	e.executions[executionID] = ex
	e.mu.Unlock()

	go e.readLines(ctx, ex)
	go e.waitAndReport(ctx, ex)

	if e.callback != nil {
		_ = e.callback.Post(ctx, executionID, StatusRunning, nil, "")
	}

	return ex.pid, nil
}

func (e *Executor) runningCountLocked() int {
	n := 0
	for _, ex := range e.executions {
		if ex.status == StatusRunning {
			n++
		}
	}
	return n
}

// readLines drains the PTY master non-blockingly, assembling UTF-8 lines
// (replacing invalid byte sequences), and pushes each complete line to the
// broker's logs list in order.
func (e *Executor) readLines(ctx context.Context, ex *execution) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)

	for {
		n, err := ex.ptmx.Read(chunk)
		if n > 0 {
			buf.Write(toValidUTF8(chunk[:n]))
			for {
				line, ok := extractLine(&buf)
				if !ok {
					break
				}
				e.pushLine(ctx, ex.id, line)
			}
		}
		if err != nil {
			break
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	if buf.Len() > 0 {
		e.pushLine(ctx, ex.id, buf.String())
	}
}

func extractLine(buf *bytes.Buffer) (string, bool) {
	b := buf.Bytes()
	idx := bytes.IndexByte(b, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(b[:idx])
	buf.Next(idx + 1)
	return line, true
}

func toValidUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	return []byte(string(b))
}

func (e *Executor) pushLine(ctx context.Context, executionID, message string) {
	if e.broker == nil {
		return
	}
	msg := broker.JobLogMessage{
		ExecutionID: executionID,
		Timestamp:   time.Now().Format("2006-01-02T15:04:05.000000Z07:00"),
		Message:     message,
	}
	if err := e.broker.PushJobLog(ctx, msg); err != nil {
		fmt.Fprintf(os.Stderr, "workeragent: push job log failed execution_id=%s err=%v\n", executionID, err)
	}
}

func (e *Executor) waitAndReport(ctx context.Context, ex *execution) {
	err := ex.cmd.Wait()
	_ = ex.ptmx.Close()

	e.mu.Lock()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	ex.exitCode = exitCode
	if ex.status == StatusRunning {
		if exitCode == 0 {
			ex.status = StatusCompleted
		} else {
			ex.status = StatusFailed
		}
	}
	status := ex.status
	e.mu.Unlock()

	if e.callback != nil {
		var errMsg string
		if status == StatusFailed {
			errMsg = fmt.Sprintf("Process exited with code %d", exitCode)
		}
		_ = e.callback.Post(ctx, ex.id, status, &exitCode, errMsg)
	}
}

// Status returns the current execution state, or ErrExecutionUnknown.
func (e *Executor) Status(executionID string) (Status, int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ex, ok := e.executions[executionID]
	if !ok {
		return "", 0, 0, ErrExecutionUnknown
	}
	return ex.status, ex.exitCode, ex.pid, nil
}

// Cancel sends a graceful terminate, waits 5s, then sends kill, and posts
// the "failed"/"Job cancelled" callback per §4.3.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	e.mu.Unlock()
	if !ok {
		return ErrExecutionUnknown
	}

	_ = ex.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = ex.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-ex.pid, syscall.SIGKILL)
	}

	e.mu.Lock()
	ex.status = StatusCancelled
	e.mu.Unlock()

	if e.callback != nil {
		_ = e.callback.Post(ctx, executionID, StatusFailed, nil, "Job cancelled")
	}

	return nil
}

package workeragent

import (
	"bytes"
	"context"
	"testing"
)

type recordingCallback struct {
	calls []string
}

func (r *recordingCallback) Post(_ context.Context, executionID string, status Status, exitCode *int, errMsg string) error {
	r.calls = append(r.calls, string(status)+":"+executionID)
	return nil
}

func TestExecuteRejectsWhenAtCapacity(t *testing.T) {
	cb := &recordingCallback{}
	e := NewExecutor(0, nil, cb)

	_, err := e.Execute(context.Background(), "default:1", "echo hi", nil)
	if err != ErrAtCapacity {
		t.Fatalf("expected ErrAtCapacity, got %v", err)
	}
}

func TestExecuteRejectsDuplicateExecutionID(t *testing.T) {
	e := NewExecutor(2, nil, nil)
	e.executions["default:1"] = &execution{id: "default:1", status: StatusRunning}

	_, err := e.Execute(context.Background(), "default:1", "echo hi", nil)
	if err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestExecuteRejectsEmptyCommand(t *testing.T) {
	e := NewExecutor(2, nil, nil)

	_, err := e.Execute(context.Background(), "default:1", "   ", nil)
	if err == nil {
		t.Fatalf("expected error for empty command")
	}
}

func TestStatusUnknownExecution(t *testing.T) {
	e := NewExecutor(2, nil, nil)

	if _, _, _, err := e.Status("nope"); err != ErrExecutionUnknown {
		t.Fatalf("expected ErrExecutionUnknown, got %v", err)
	}
}

func TestRunningCountOnlyCountsRunning(t *testing.T) {
	e := NewExecutor(5, nil, nil)
	e.executions["a"] = &execution{status: StatusRunning}
	e.executions["b"] = &execution{status: StatusCompleted}
	e.executions["c"] = &execution{status: StatusFailed}

	if got := e.RunningCount(); got != 1 {
		t.Fatalf("expected 1 running execution, got %d", got)
	}
}

func TestSetMaxJobsUpdatesCapacityCheck(t *testing.T) {
	e := NewExecutor(0, nil, nil)
	e.SetMaxJobs(3)

	if got := e.MaxJobs(); got != 3 {
		t.Fatalf("expected max_jobs=3, got %d", got)
	}
}

func TestExtractLineSplitsOnNewline(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("first\nsecond")

	line, ok := extractLine(&buf)
	if !ok || line != "first" {
		t.Fatalf("expected %q, got %q ok=%v", "first", line, ok)
	}

	_, ok = extractLine(&buf)
	if ok {
		t.Fatalf("expected no complete line left")
	}
}

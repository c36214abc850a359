// Package logingest owns the broker's "logs" list: a long-lived consumer
// that demultiplexes job and worker log lines into per-id append-only
// files and mutates job state from in-band keywords.
package logingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/dispatch/internal/broker"
)

// JobUpdater is the narrow callback surface the consumer is injected with,
// implemented by jobservice.Service. Keeping it an interface here (rather
// than importing jobservice directly) is the re-architecture called for
// in §9: logger -> job service -> store -> consumer no longer cycles back
// through a shared package.
type JobUpdater interface {
	UpdateProgress(ctx context.Context, id int64, progress int) error
	UpdateResult(ctx context.Context, id int64, result json.RawMessage) error
	UpdateError(ctx context.Context, id int64, message string) error
}

type BrokerClient interface {
	BlockingPop(ctx context.Context) (broker.RawMessage, error)
}

type Consumer struct {
	broker BrokerClient
	jobs   JobUpdater

	jobWriters    *writerCache
	workerWriters *writerCache

	consecutiveErrors int
}

func NewConsumer(b BrokerClient, jobs JobUpdater, jobsLogDir, workersLogDir string) *Consumer {
	return &Consumer{
		broker: b,
		jobs:   jobs,
		jobWriters: newWriterCache(func(executionID string) string {
			jobID, _ := jobIDFromExecutionID(executionID)
			return filepath.Join(jobsLogDir, fmt.Sprintf("%d.log", jobID))
		}),
		workerWriters: newWriterCache(func(workerName string) string {
			return filepath.Join(workersLogDir, workerName+".log")
		}),
	}
}

// Run blocks, popping messages until ctx is cancelled. Connection errors
// back off exponentially (2^min(n,4) seconds); after 10 consecutive
// errors the loop logs a reinit and resets its counter, matching §4.4's
// reconnect policy (the broker client itself owns redialing).
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.broker.BlockingPop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			c.consecutiveErrors++
			delay := backoffDelay(c.consecutiveErrors)
			slog.Error("logingest.pop_failed", "err", err, "consecutive_errors", c.consecutiveErrors, "retry_in", delay)

			if c.consecutiveErrors >= 10 {
				slog.Warn("logingest.reinit", "consecutive_errors", c.consecutiveErrors)
				c.consecutiveErrors = 0
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.consecutiveErrors = 0
		c.handle(ctx, msg)
	}
}

func backoffDelay(n int) time.Duration {
	exp := n
	if exp > 4 {
		exp = 4
	}
	return time.Duration(1<<uint(exp)) * time.Second
}

func (c *Consumer) handle(ctx context.Context, msg broker.RawMessage) {
	switch {
	case msg.ExecutionID != "":
		c.handleJobLine(ctx, msg)
	case msg.WorkerName != "":
		c.handleWorkerLine(msg)
	default:
		slog.Warn("logingest.dropped_message_missing_identity")
	}
}

func (c *Consumer) handleJobLine(ctx context.Context, msg broker.RawMessage) {
	writer := c.jobWriters.get(msg.ExecutionID)
	if err := writer.Write(msg.Message + "\n"); err != nil {
		slog.Error("logingest.job_write_failed", "execution_id", msg.ExecutionID, "err", err)
	}

	jobID, ok := jobIDFromExecutionID(msg.ExecutionID)
	if !ok {
		slog.Warn("logingest.unparseable_execution_id", "execution_id", msg.ExecutionID)
		return
	}

	parsed := ParseLine(msg.Message)
	if parsed.OutOfRange {
		slog.Warn("logingest.progress_out_of_range", "execution_id", msg.ExecutionID, "line", msg.Message)
	}
	if parsed.HasProgress {
		if err := c.jobs.UpdateProgress(ctx, jobID, parsed.Progress); err != nil {
			slog.Error("logingest.update_progress_failed", "job_id", jobID, "err", err)
		}
	}
	if parsed.HasResult {
		if err := c.jobs.UpdateResult(ctx, jobID, parsed.Result); err != nil {
			slog.Error("logingest.update_result_failed", "job_id", jobID, "err", err)
		}
	}
	if parsed.HasError {
		if err := c.jobs.UpdateError(ctx, jobID, parsed.ErrorMessage); err != nil {
			slog.Error("logingest.update_error_failed", "job_id", jobID, "err", err)
		}
	}
}

func (c *Consumer) handleWorkerLine(msg broker.RawMessage) {
	writer := c.workerWriters.get(msg.WorkerName)
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), msg.Message)
	if err := writer.Write(line); err != nil {
		slog.Error("logingest.worker_write_failed", "worker", msg.WorkerName, "err", err)
	}
}

// CloseJobLog flushes and closes the cached handle for executionID. The
// dispatcher calls this when a terminal status callback arrives; a
// trailing append after close transparently reopens the file (P6).
func (c *Consumer) CloseJobLog(executionID string) error {
	return c.jobWriters.close(executionID)
}

func jobIDFromExecutionID(executionID string) (int64, bool) {
	idx := strings.LastIndex(executionID, ":")
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(executionID[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

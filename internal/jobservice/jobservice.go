// Package jobservice implements the job service contract of §4.1: create,
// transition, progress/result/error capture, retry, cancel, and log file
// lifecycle. It is the narrow callback surface the log ingestion consumer
// is injected with, breaking the logger -> job -> store -> consumer import
// cycle the source exhibited (§9).
package jobservice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/job"
)

var ErrNoDefaultQueue = fmt.Errorf("no default queue configured and job has no queue_name")

type JobsRepo interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	GetByID(ctx context.Context, id int64) (job.Job, error)
	Transition(ctx context.Context, id int64, to job.Status) error
	UpdateProgress(ctx context.Context, id int64, progress int) error
	UpdateResult(ctx context.Context, id int64, result json.RawMessage) error
	UpdateError(ctx context.Context, id int64, message string) error
	SetLogFilePath(ctx context.Context, id int64, path string) error
	Retry(ctx context.Context, id int64) (job.Job, error)
	Cancel(ctx context.Context, id int64) error
	ListCursor(ctx context.Context, status *string, queueName *string, limit int, afterCreatedAt time.Time, afterID int64) ([]job.Job, *string, bool, error)
	Statistics(ctx context.Context) (map[job.Status]int64, error)
}

// QueueEngine is the slice of internal/queueengine.Engine the job service
// needs: enqueueing a freshly created (or retried) job into its queue's
// in-memory FIFO.
type QueueEngine interface {
	AddJob(ctx context.Context, queueName string, jobID int64) error
	ResolveQueueName(ctx context.Context, name string) (string, error)
}

type Service struct {
	jobs    JobsRepo
	engine  QueueEngine
	logDir  string
}

func New(jobs JobsRepo, engine QueueEngine, logDir string) *Service {
	return &Service{jobs: jobs, engine: engine, logDir: logDir}
}

func (s *Service) logPath(id int64) string {
	return filepath.Join(s.logDir, fmt.Sprintf("%d.log", id))
}

// Create persists a Pending job, writes its log file header, and enqueues
// it into the named (or default) queue's in-memory FIFO. A non-empty
// queue_name is canonicalized (B2) before the row is written so the
// stored name always matches the queue's actual casing.
func (s *Service) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	if req.QueueName != "" {
		canonical, err := s.engine.ResolveQueueName(ctx, req.QueueName)
		if err != nil {
			return job.Job{}, err
		}
		req.QueueName = canonical
	}

	j, err := s.jobs.Create(ctx, req)
	if err != nil {
		return job.Job{}, err
	}

	path := s.logPath(j.ID)
	if err := s.writeLogHeader(path, j); err != nil {
		return job.Job{}, fmt.Errorf("write log header: %w", err)
	}
	if err := s.jobs.SetLogFilePath(ctx, j.ID, path); err != nil {
		return job.Job{}, err
	}
	j.LogFilePath = path

	if err := s.engine.AddJob(ctx, j.QueueName, j.ID); err != nil {
		return j, fmt.Errorf("enqueue job %d: %w", j.ID, err)
	}

	return j, nil
}

func (s *Service) writeLogHeader(path string, j job.Job) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	header := fmt.Sprintf("=== job %d (%s) created %s ===\n", j.ID, j.Name, j.CreatedAt.Format(time.RFC3339))
	_, err = f.WriteString(header)
	return err
}

func (s *Service) GetByID(ctx context.Context, id int64) (job.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// Cancel transitions a Pending or Running job to Cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	return s.jobs.Cancel(ctx, id)
}

// Retry clones id (must be Failed) into a new Pending job and enqueues it.
func (s *Service) Retry(ctx context.Context, id int64) (job.Job, error) {
	newJob, err := s.jobs.Retry(ctx, id)
	if err != nil {
		return job.Job{}, err
	}

	path := s.logPath(newJob.ID)
	if err := s.writeLogHeader(path, newJob); err != nil {
		return job.Job{}, fmt.Errorf("write log header: %w", err)
	}
	if err := s.jobs.SetLogFilePath(ctx, newJob.ID, path); err != nil {
		return job.Job{}, err
	}
	newJob.LogFilePath = path

	if err := s.engine.AddJob(ctx, newJob.QueueName, newJob.ID); err != nil {
		return newJob, fmt.Errorf("enqueue retried job %d: %w", newJob.ID, err)
	}
	return newJob, nil
}

// UpdateProgress implements the log parser's PROGRESS= callback: clamp,
// store, and - if the job hasn't started yet - move it to Running.
func (s *Service) UpdateProgress(ctx context.Context, id int64, progress int) error {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.jobs.UpdateProgress(ctx, id, progress); err != nil {
		return err
	}
	if j.Status == job.StatusPending {
		return s.jobs.Transition(ctx, id, job.StatusRunning)
	}
	return nil
}

// UpdateResult implements the log parser's RESULT= callback: store the
// payload and, unless the job already reached a terminal state, complete it.
func (s *Service) UpdateResult(ctx context.Context, id int64, result json.RawMessage) error {
	if err := s.jobs.UpdateResult(ctx, id, result); err != nil {
		return err
	}
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		return nil
	}
	return s.jobs.Transition(ctx, id, job.StatusCompleted)
}

// UpdateError implements both the log parser's ERROR= callback and the
// worker callback's non-zero exit path. The repo only honors the first
// non-empty error_message it sees, matching the "log parser wins" rule.
// Per §4.1 it also appends a synthetic line to the job log so the
// failure reason is visible alongside the command's own output.
func (s *Service) UpdateError(ctx context.Context, id int64, message string) error {
	if err := s.jobs.UpdateError(ctx, id, message); err != nil {
		return err
	}
	if err := s.AppendLog(id, fmt.Sprintf("=== job failed: %s ===", message)); err != nil {
		return fmt.Errorf("append failure log line: %w", err)
	}
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status == job.StatusFailed {
		return nil
	}
	return s.jobs.Transition(ctx, id, job.StatusFailed)
}

// MarkCompleted implements the worker agent's authoritative "completed"
// status callback (§4.4): unless the job already reached a terminal
// state (e.g. the log parser's RESULT= line already completed it, or an
// ERROR= line already failed it), transitions it to Completed.
func (s *Service) MarkCompleted(ctx context.Context, id int64) error {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.IsTerminal() {
		return nil
	}
	return s.jobs.Transition(ctx, id, job.StatusCompleted)
}

// AppendLog writes a synthetic line directly to the job's log file,
// unbuffered and fsynced, the same write discipline the log ingestion
// writer uses for agent-sourced lines.
func (s *Service) AppendLog(id int64, line string) error {
	f, err := os.OpenFile(s.logPath(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Service) GetLog(id int64) ([]byte, error) {
	return os.ReadFile(s.logPath(id))
}

func (s *Service) Statistics(ctx context.Context) (map[job.Status]int64, error) {
	return s.jobs.Statistics(ctx)
}

func (s *Service) ListCursor(ctx context.Context, status *string, queueName *string, limit int, afterCreatedAt time.Time, afterID int64) ([]job.Job, *string, bool, error) {
	return s.jobs.ListCursor(ctx, status, queueName, limit, afterCreatedAt, afterID)
}

// Package queueengine holds the in-memory per-queue FIFO and the dispatch
// loop that pops jobs, picks an eligible worker, and hands the job to the
// worker agent. The FIFO order is never persisted; it is rebuilt from the
// store on startup.
package queueengine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/job"
	"github.com/geocoder89/dispatch/internal/domain/queuespec"
	"github.com/geocoder89/dispatch/internal/domain/specification"
	"github.com/geocoder89/dispatch/internal/domain/worker"
	"github.com/geocoder89/dispatch/internal/observability"
)

// JobsRepository is the narrow slice of the jobs store the engine needs.
// Narrowing (rather than depending on *postgres.JobsRepo directly) keeps
// the dispatch loop testable with an in-memory fake.
type JobsRepository interface {
	GetByID(ctx context.Context, id int64) (job.Job, error)
	ListActive(ctx context.Context) ([]job.Job, error)
	ResetInterrupted(ctx context.Context, id int64) error
	Transition(ctx context.Context, id int64, to job.Status) error
	AssignWorker(ctx context.Context, id int64, workerName string) error
	Requeue(ctx context.Context, id int64) error
	UpdateError(ctx context.Context, id int64, message string) error
}

type WorkersRepository interface {
	ListEligibleWithLoad(ctx context.Context) ([]worker.Worker, map[string]int, error)
}

type QueuesRepository interface {
	List(ctx context.Context) ([]queuespec.Queue, error)
	GetByName(ctx context.Context, name string) (queuespec.Queue, error)
}

type AssignmentsRepository interface {
	WorkersForQueue(ctx context.Context, queueName string) ([]string, error)
}

type SpecificationsRepository interface {
	GetByName(ctx context.Context, name string) (specification.Specification, error)
}

// AgentClient is how the engine reaches a worker agent's HTTP API. The
// production implementation lives in agentclient.go; tests substitute a
// fake that never leaves the process.
type AgentClient interface {
	ExecuteCommand(ctx context.Context, w worker.Worker, executionID, command string, args []string) error
}

type Config struct {
	DispatchInterval time.Duration
	DefaultQueueName string
	AgentCallTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = 5 * time.Second
	}
	if c.DefaultQueueName == "" {
		c.DefaultQueueName = "default"
	}
	if c.AgentCallTimeout <= 0 {
		c.AgentCallTimeout = 30 * time.Second
	}
}

// Engine owns the in-memory queue_name -> job id FIFO and the dispatch
// loop built on top of it.
type Engine struct {
	cfg Config

	jobs        JobsRepository
	workers     WorkersRepository
	queues      QueuesRepository
	assignments AssignmentsRepository
	specs       SpecificationsRepository
	agent       AgentClient

	prom    *observability.Prom
	metrics *observability.DispatchMetrics

	mu          sync.Mutex
	fifo        map[string][]int64
	rrCursor    map[string]int // round-robin cursor per queue

	readyMu sync.RWMutex
	ready   bool
}

func New(
	cfg Config,
	jobs JobsRepository,
	workers WorkersRepository,
	queues QueuesRepository,
	assignments AssignmentsRepository,
	specs SpecificationsRepository,
	agent AgentClient,
	prom *observability.Prom,
) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:         cfg,
		jobs:        jobs,
		workers:     workers,
		queues:      queues,
		assignments: assignments,
		specs:       specs,
		agent:       agent,
		prom:        prom,
		metrics:     observability.NewDispatchMetrics(),
		fifo:        make(map[string][]int64),
		rrCursor:    make(map[string]int),
	}
}

func (e *Engine) Metrics() *observability.DispatchMetrics {
	return e.metrics
}

// Reconcile implements the startup reconciliation algorithm of §4.2: load
// every non-terminal job, repair interrupted Running jobs, default empty
// queue names, and rebuild the in-memory FIFO in creation order.
func (e *Engine) Reconcile(ctx context.Context) error {
	jobs, err := e.jobs.ListActive(ctx)
	if err != nil {
		return err
	}

	queues, err := e.queues.List(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(queues))
	for _, q := range queues {
		known[q.Name] = true
	}
	haveDefault := known[e.cfg.DefaultQueueName]

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, j := range jobs {
		queueName := j.QueueName
		if queueName == "" {
			if !haveDefault {
				slog.Warn("reconcile.skip_no_default_queue", "job_id", j.ID)
				continue
			}
			queueName = e.cfg.DefaultQueueName
		}
		if !known[queueName] {
			slog.Warn("reconcile.skip_unknown_queue", "job_id", j.ID, "queue", queueName)
			continue
		}

		if j.Status == job.StatusRunning {
			if err := e.jobs.ResetInterrupted(ctx, j.ID); err != nil {
				slog.Error("reconcile.reset_interrupted_failed", "job_id", j.ID, "err", err)
				continue
			}
		}

		e.appendLocked(queueName, j.ID)
	}

	slog.Info("reconcile.complete", "queues", len(e.fifo), "jobs", len(jobs))
	return nil
}

// ResolveQueueName looks a queue name up case-insensitively (B2) and
// returns it in its stored, canonical casing, so a caller that persists
// the name (the job row's queue_name column) stays consistent with the
// FIFO key AddJob uses and with Reconcile's exact-match known-queue check.
func (e *Engine) ResolveQueueName(ctx context.Context, name string) (string, error) {
	q, err := e.queues.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

// AddJob pushes job_id onto the tail of queue's in-memory FIFO. The queue
// must exist and be started; duplicates are rejected (P3, B1).
func (e *Engine) AddJob(ctx context.Context, queueName string, jobID int64) error {
	q, err := e.queues.GetByName(ctx, queueName)
	if err != nil {
		return err
	}
	if q.State != queuespec.StateStarted {
		return ErrQueueNotStarted
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.fifo[q.Name] {
		if id == jobID {
			return ErrDuplicateJob
		}
	}
	e.appendLocked(q.Name, jobID)
	return nil
}

func (e *Engine) appendLocked(queueName string, jobID int64) {
	for _, id := range e.fifo[queueName] {
		if id == jobID {
			return
		}
	}
	e.fifo[queueName] = append(e.fifo[queueName], jobID)
	if e.prom != nil {
		e.prom.QueueDepth.WithLabelValues(queueName).Set(float64(len(e.fifo[queueName])))
	}
}

// popHead removes and returns the head job id of queueName, or false if
// the queue is empty.
func (e *Engine) popHead(queueName string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.fifo[queueName]
	if len(ids) == 0 {
		return 0, false
	}
	id := ids[0]
	e.fifo[queueName] = ids[1:]
	if e.prom != nil {
		e.prom.QueueDepth.WithLabelValues(queueName).Set(float64(len(e.fifo[queueName])))
	}
	return id, true
}

// pushHead returns job_id to the front of queueName's FIFO, preserving
// creation order for a temporary dispatch failure (Open Questions: this
// implementation chooses head-requeue to preserve order over tail-penalty).
func (e *Engine) pushHead(queueName string, jobID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fifo[queueName] = append([]int64{jobID}, e.fifo[queueName]...)
	if e.prom != nil {
		e.prom.QueueDepth.WithLabelValues(queueName).Set(float64(len(e.fifo[queueName])))
	}
}

func (e *Engine) queueDepth(queueName string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fifo[queueName])
}

func (e *Engine) setReady(ready bool) {
	e.readyMu.Lock()
	e.ready = ready
	e.readyMu.Unlock()
}

func (e *Engine) Ready() bool {
	e.readyMu.RLock()
	defer e.readyMu.RUnlock()
	return e.ready
}

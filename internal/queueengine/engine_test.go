package queueengine

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/job"
	"github.com/geocoder89/dispatch/internal/domain/queuespec"
	"github.com/geocoder89/dispatch/internal/domain/specification"
	"github.com/geocoder89/dispatch/internal/domain/worker"
)

type fakeJobsRepo struct {
	jobs       map[int64]job.Job
	reset      map[int64]bool
	transition []job.Status
}

func newFakeJobsRepo() *fakeJobsRepo {
	return &fakeJobsRepo{jobs: make(map[int64]job.Job), reset: make(map[int64]bool)}
}

func (f *fakeJobsRepo) GetByID(ctx context.Context, id int64) (job.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, nil
}
func (f *fakeJobsRepo) ListActive(ctx context.Context) ([]job.Job, error) {
	var out []job.Job
	for _, j := range f.jobs {
		if !j.Status.IsTerminal() {
			out = append(out, j)
		}
	}
	return out, nil
}
func (f *fakeJobsRepo) ResetInterrupted(ctx context.Context, id int64) error {
	f.reset[id] = true
	j := f.jobs[id]
	j.Status = job.StatusPending
	f.jobs[id] = j
	return nil
}
func (f *fakeJobsRepo) Transition(ctx context.Context, id int64, to job.Status) error {
	f.transition = append(f.transition, to)
	j := f.jobs[id]
	j.Status = to
	f.jobs[id] = j
	return nil
}
func (f *fakeJobsRepo) AssignWorker(ctx context.Context, id int64, workerName string) error {
	j := f.jobs[id]
	j.AssignedWorkerName = workerName
	f.jobs[id] = j
	return nil
}
func (f *fakeJobsRepo) Requeue(ctx context.Context, id int64) error { return nil }
func (f *fakeJobsRepo) UpdateError(ctx context.Context, id int64, message string) error {
	j := f.jobs[id]
	j.ErrorMessage = message
	f.jobs[id] = j
	return nil
}

type fakeWorkersRepo struct {
	workers []worker.Worker
	load    map[string]int
}

func (f *fakeWorkersRepo) ListEligibleWithLoad(ctx context.Context) ([]worker.Worker, map[string]int, error) {
	return f.workers, f.load, nil
}

type fakeQueuesRepo struct {
	queues map[string]queuespec.Queue
}

func (f *fakeQueuesRepo) List(ctx context.Context) ([]queuespec.Queue, error) {
	var out []queuespec.Queue
	for _, q := range f.queues {
		out = append(out, q)
	}
	return out, nil
}
func (f *fakeQueuesRepo) GetByName(ctx context.Context, name string) (queuespec.Queue, error) {
	q, ok := f.queues[name]
	if !ok {
		return queuespec.Queue{}, queuespec.ErrNotFound
	}
	return q, nil
}

type fakeAssignmentsRepo struct {
	assignments map[string][]string
}

func (f *fakeAssignmentsRepo) WorkersForQueue(ctx context.Context, queueName string) ([]string, error) {
	return f.assignments[queueName], nil
}

type fakeSpecsRepo struct {
	specs map[string]specification.Specification
}

func (f *fakeSpecsRepo) GetByName(ctx context.Context, name string) (specification.Specification, error) {
	s, ok := f.specs[name]
	if !ok {
		return specification.Specification{}, specification.ErrNotFound
	}
	return s, nil
}

type fakeAgentClient struct {
	err error
}

func (f *fakeAgentClient) ExecuteCommand(ctx context.Context, w worker.Worker, executionID, command string, args []string) error {
	return f.err
}

func newTestEngine() (*Engine, *fakeJobsRepo, *fakeQueuesRepo) {
	jobsRepo := newFakeJobsRepo()
	queuesRepo := &fakeQueuesRepo{queues: map[string]queuespec.Queue{
		"default": {Name: "default", State: queuespec.StateStarted, Priority: queuespec.PriorityNormal, Strategy: queuespec.StrategyRoundRobin},
	}}
	workersRepo := &fakeWorkersRepo{load: map[string]int{}}
	assignmentsRepo := &fakeAssignmentsRepo{assignments: map[string][]string{}}
	specsRepo := &fakeSpecsRepo{specs: map[string]specification.Specification{}}
	agent := &fakeAgentClient{}

	e := New(Config{DispatchInterval: time.Second}, jobsRepo, workersRepo, queuesRepo, assignmentsRepo, specsRepo, agent, nil)
	return e, jobsRepo, queuesRepo
}

func TestAddJobRejectsDuplicate(t *testing.T) {
	e, jobsRepo, _ := newTestEngine()
	jobsRepo.jobs[1] = job.Job{ID: 1, QueueName: "default", Status: job.StatusPending}

	ctx := context.Background()
	if err := e.AddJob(ctx, "default", 1); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}
	if err := e.AddJob(ctx, "default", 1); err != ErrDuplicateJob {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
	if depth := e.queueDepth("default"); depth != 1 {
		t.Fatalf("expected depth 1 after rejected duplicate, got %d", depth)
	}
}

func TestAddJobRejectsNonStartedQueue(t *testing.T) {
	e, _, queuesRepo := newTestEngine()
	q := queuesRepo.queues["default"]
	q.State = queuespec.StatePaused
	queuesRepo.queues["default"] = q

	if err := e.AddJob(context.Background(), "default", 1); err != ErrQueueNotStarted {
		t.Fatalf("expected ErrQueueNotStarted, got %v", err)
	}
}

func TestReconcileResetsInterruptedRunningJobs(t *testing.T) {
	e, jobsRepo, _ := newTestEngine()
	jobsRepo.jobs[1] = job.Job{ID: 1, QueueName: "default", Status: job.StatusRunning, CreatedAt: time.Now()}
	jobsRepo.jobs[2] = job.Job{ID: 2, QueueName: "default", Status: job.StatusPending, CreatedAt: time.Now()}

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !jobsRepo.reset[1] {
		t.Fatalf("expected job 1 to be reset from running to pending")
	}
	if depth := e.queueDepth("default"); depth != 2 {
		t.Fatalf("expected both jobs back in the FIFO, got depth %d", depth)
	}
}

func TestReconcileDefaultsEmptyQueueName(t *testing.T) {
	e, jobsRepo, _ := newTestEngine()
	jobsRepo.jobs[1] = job.Job{ID: 1, QueueName: "", Status: job.StatusPending, CreatedAt: time.Now()}

	if err := e.Reconcile(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if depth := e.queueDepth("default"); depth != 1 {
		t.Fatalf("expected job with empty queue_name to land in default, got depth %d", depth)
	}
}

func TestDispatchOneTemporaryFailureNoWorkersAssigned(t *testing.T) {
	e, jobsRepo, queuesRepo := newTestEngine()
	jobsRepo.jobs[1] = job.Job{ID: 1, Name: "greet", QueueName: "default", Status: job.StatusPending}

	q := queuesRepo.queues["default"]
	outcome, message, err := e.dispatchOne(context.Background(), q, jobsRepo.jobs[1])
	if outcome != outcomeTemporary {
		t.Fatalf("expected temporary outcome, got %v (err=%v)", outcome, err)
	}
	if message != "No workers assigned" {
		t.Fatalf("expected 'No workers assigned', got %q", message)
	}
}

func TestDispatchOnePermanentFailureMissingSpec(t *testing.T) {
	e, jobsRepo, queuesRepo := newTestEngine()
	jobsRepo.jobs[1] = job.Job{ID: 1, Name: "missing-spec", QueueName: "default", Status: job.StatusPending}

	assignmentsRepo := e.assignments.(*fakeAssignmentsRepo)
	assignmentsRepo.assignments["default"] = []string{"w1"}

	workersRepo := e.workers.(*fakeWorkersRepo)
	workersRepo.workers = []worker.Worker{{Name: "w1", MaxJobs: 2, State: worker.StateStarted, Status: worker.StatusOnline}}

	q := queuesRepo.queues["default"]
	outcome, _, err := e.dispatchOne(context.Background(), q, jobsRepo.jobs[1])
	if outcome != outcomePermanent {
		t.Fatalf("expected permanent outcome for missing spec, got %v (err=%v)", outcome, err)
	}
}

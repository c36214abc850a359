// Package workerservice wraps worker record CRUD and queue assignment.
// Lifecycle actions that touch a live process or an SSH session (start,
// stop, provision, health) belong to internal/workermanager; this package
// only owns the row.
package workerservice

import (
	"context"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/worker"
)

type WorkersRepo interface {
	Create(ctx context.Context, req worker.CreateRequest) (worker.Worker, error)
	GetByName(ctx context.Context, name string) (worker.Worker, error)
	List(ctx context.Context) ([]worker.Worker, error)
	ListEligibleWithLoad(ctx context.Context) ([]worker.Worker, map[string]int, error)
	SetStatus(ctx context.Context, name string, status worker.Status, errMsg string) error
	SetState(ctx context.Context, name string, state worker.State) error
	Touch(ctx context.Context, name string, seen time.Time) error
	UpdateMaxJobs(ctx context.Context, name string, maxJobs int) error
	SetLogFilePath(ctx context.Context, name, path string) error
	Delete(ctx context.Context, name string) error
}

type AssignmentsRepo interface {
	Assign(ctx context.Context, queueName, workerName string) error
	Unassign(ctx context.Context, queueName, workerName string) error
	WorkersForQueue(ctx context.Context, queueName string) ([]string, error)
	QueuesForWorker(ctx context.Context, workerName string) ([]string, error)
}

type Service struct {
	workers     WorkersRepo
	assignments AssignmentsRepo
}

func New(workers WorkersRepo, assignments AssignmentsRepo) *Service {
	return &Service{workers: workers, assignments: assignments}
}

func (s *Service) Create(ctx context.Context, req worker.CreateRequest) (worker.Worker, error) {
	return s.workers.Create(ctx, req)
}

func (s *Service) GetByName(ctx context.Context, name string) (worker.Worker, error) {
	return s.workers.GetByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]worker.Worker, error) {
	return s.workers.List(ctx)
}

func (s *Service) UpdateMaxJobs(ctx context.Context, name string, maxJobs int) error {
	return s.workers.UpdateMaxJobs(ctx, name, maxJobs)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	return s.workers.Delete(ctx, name)
}

func (s *Service) AssignToQueue(ctx context.Context, queueName, workerName string) error {
	return s.assignments.Assign(ctx, queueName, workerName)
}

func (s *Service) UnassignFromQueue(ctx context.Context, queueName, workerName string) error {
	return s.assignments.Unassign(ctx, queueName, workerName)
}

func (s *Service) QueuesForWorker(ctx context.Context, workerName string) ([]string, error) {
	return s.assignments.QueuesForWorker(ctx, workerName)
}

func (s *Service) WorkersForQueue(ctx context.Context, queueName string) ([]string, error) {
	return s.assignments.WorkersForQueue(ctx, queueName)
}

// Pause toggles state to paused without touching status, per §4.5.
func (s *Service) Pause(ctx context.Context, name string) error {
	return s.workers.SetState(ctx, name, worker.StatePaused)
}

// Resume returns state to started; the health monitor recomputes status
// on its next tick.
func (s *Service) Resume(ctx context.Context, name string) error {
	return s.workers.SetState(ctx, name, worker.StateStarted)
}

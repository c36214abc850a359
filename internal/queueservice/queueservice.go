// Package queueservice wraps the queue store: queue CRUD, state machine
// transitions, and the is_default uniqueness invariant (§3, P8).
package queueservice

import (
	"context"

	"github.com/geocoder89/dispatch/internal/domain/queuespec"
)

type QueuesRepo interface {
	Create(ctx context.Context, req queuespec.CreateRequest) (queuespec.Queue, error)
	GetByName(ctx context.Context, name string) (queuespec.Queue, error)
	List(ctx context.Context) ([]queuespec.Queue, error)
	SetState(ctx context.Context, name string, state queuespec.State) error
	SetDefault(ctx context.Context, name string) error
	SetLogFilePath(ctx context.Context, name, path string) error
	Delete(ctx context.Context, name string) error
}

type Service struct {
	repo QueuesRepo
}

func New(repo QueuesRepo) *Service {
	return &Service{repo: repo}
}

// Create inserts a queue and, if requested as the default, atomically
// clears every other row's is_default afterward.
func (s *Service) Create(ctx context.Context, req queuespec.CreateRequest) (queuespec.Queue, error) {
	wantDefault := req.IsDefault
	req.IsDefault = false // SetDefault owns clearing/setting the flag

	q, err := s.repo.Create(ctx, req)
	if err != nil {
		return queuespec.Queue{}, err
	}

	if wantDefault {
		if err := s.repo.SetDefault(ctx, q.Name); err != nil {
			return queuespec.Queue{}, err
		}
		q.IsDefault = true
	}

	return q, nil
}

func (s *Service) GetByName(ctx context.Context, name string) (queuespec.Queue, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]queuespec.Queue, error) {
	return s.repo.List(ctx)
}

func (s *Service) SetState(ctx context.Context, name string, state queuespec.State) error {
	return s.repo.SetState(ctx, name, state)
}

func (s *Service) SetDefault(ctx context.Context, name string) error {
	return s.repo.SetDefault(ctx, name)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	return s.repo.Delete(ctx, name)
}

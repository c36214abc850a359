// Package specservice implements the specification registry of §4.6: CRUD
// by name with soft delete, rejecting a duplicate active name.
package specservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/dispatch/internal/domain/specification"
)

var ErrDuplicateActiveName = errors.New("an active specification with this name already exists")

type SpecsRepo interface {
	Create(ctx context.Context, req specification.CreateRequest) (specification.Specification, error)
	GetByName(ctx context.Context, name string) (specification.Specification, error)
	List(ctx context.Context, activeOnly bool) ([]specification.Specification, error)
	Update(ctx context.Context, name, description, command string, isActive bool) error
	Delete(ctx context.Context, name string) error
}

type Service struct {
	repo SpecsRepo
}

func New(repo SpecsRepo) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, req specification.CreateRequest) (specification.Specification, error) {
	existing, err := s.repo.GetByName(ctx, req.Name)
	if err == nil && existing.IsActive {
		return specification.Specification{}, ErrDuplicateActiveName
	}
	if err != nil && !errors.Is(err, specification.ErrNotFound) {
		return specification.Specification{}, fmt.Errorf("check duplicate name: %w", err)
	}
	return s.repo.Create(ctx, req)
}

func (s *Service) GetByName(ctx context.Context, name string) (specification.Specification, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]specification.Specification, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *Service) Update(ctx context.Context, name, description, command string, isActive bool) error {
	return s.repo.Update(ctx, name, description, command, isActive)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	return s.repo.Delete(ctx, name)
}

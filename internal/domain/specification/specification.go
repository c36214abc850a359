package specification

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("specification not found")

// Specification is a named command template. Command may contain {{key}}
// placeholders substituted from a job's runtime_args at dispatch time.
type Specification struct {
	ID          int64
	Name        string
	Description string
	Command     string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateRequest struct {
	Name        string
	Description string
	Command     string
}

func New(req CreateRequest) Specification {
	now := time.Now().UTC()
	return Specification{
		Name:        req.Name,
		Description: req.Description,
		Command:     req.Command,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

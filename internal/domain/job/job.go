package job

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var ErrJobNotFound = errors.New("job not found")

// IsTerminal reports whether s is one of the job's terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// transitions mirrors the state table: only these (from, to) pairs are
// legal. Retry does not transition an existing row - it creates a new
// Pending job and bumps Retries on the original - so Failed has no
// outgoing edges here.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether moving from -> to is an allowed transition.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Parameters is the structured blob stored on a job: which specification it
// invokes, who created it, and the runtime arguments substituted into the
// specification's command template.
type Parameters struct {
	SpecName    string            `json:"spec_name"`
	CreatedBy   string            `json:"created_by"`
	RuntimeArgs map[string]string `json:"runtime_args,omitempty"`
}

type Job struct {
	ID                 int64
	Name               string
	Status             Status
	Progress           int
	Parameters         Parameters
	Result             []byte // raw JSON, nil when unset
	ErrorMessage       string
	LogFilePath        string
	WorkerName         string
	QueueName          string
	AssignedWorkerName string
	Retries            int
	MaxRetries         int
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// CreateRequest is the input to the job service's Create operation.
type CreateRequest struct {
	Name        string
	RuntimeArgs map[string]string
	CreatedBy   string
	QueueName   string
	MaxRetries  int
}

// New builds a Pending job from a CreateRequest. LogFilePath is left blank;
// the job service fills it in once it knows the assigned ID.
func New(req CreateRequest) Job {
	now := time.Now().UTC()

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return Job{
		Name:     req.Name,
		Status:   StatusPending,
		Progress: 0,
		Parameters: Parameters{
			SpecName:    req.Name,
			CreatedBy:   req.CreatedBy,
			RuntimeArgs: req.RuntimeArgs,
		},
		QueueName:  req.QueueName,
		MaxRetries: maxRetries,
		CreatedAt:  now,
	}
}

// ClampProgress keeps progress within the valid 0-100 range.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

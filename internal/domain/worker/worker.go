package worker

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("worker not found")
	ErrSystemUndeletable  = errors.New("the System worker cannot be deleted")
	ErrPortInUse          = errors.New("port already assigned to another worker")
)

// SystemWorkerName is the name of the worker seeded at first boot. It can
// never be deleted and always runs as a local worker.
const SystemWorkerName = "System"

type Type string

const (
	TypeLocal  Type = "local"
	TypeRemote Type = "remote"
)

type AuthMethod string

const (
	AuthMethodKey      AuthMethod = "key"
	AuthMethodPassword AuthMethod = "password"
)

type Status string

const (
	StatusOnline       Status = "online"
	StatusOffline      Status = "offline"
	StatusProvisioning Status = "provisioning"
	StatusError        Status = "error"
)

type State string

const (
	StateStarted State = "started"
	StateStopped State = "stopped"
	StatePaused  State = "paused"
	StateFailed  State = "failed"
)

type Worker struct {
	Name           string
	WorkerType     Type
	Hostname       string
	IPAddress      string
	Port           int
	SSHUser        string
	AuthMethod     AuthMethod
	SSHPrivateKey  string
	Password       string
	Provision      bool
	MaxJobs        int
	Status         Status
	State          State
	LastSeen       *time.Time
	ErrorMessage   string
	LogFilePath    string
}

type CreateRequest struct {
	Name          string
	WorkerType    Type
	Hostname      string
	IPAddress     string
	Port          int
	SSHUser       string
	AuthMethod    AuthMethod
	SSHPrivateKey string
	Password      string
	Provision     bool
	MaxJobs       int
}

func New(req CreateRequest) Worker {
	maxJobs := req.MaxJobs
	if maxJobs < 1 {
		maxJobs = 1
	}
	return Worker{
		Name:          req.Name,
		WorkerType:    req.WorkerType,
		Hostname:      req.Hostname,
		IPAddress:     req.IPAddress,
		Port:          req.Port,
		SSHUser:       req.SSHUser,
		AuthMethod:    req.AuthMethod,
		SSHPrivateKey: req.SSHPrivateKey,
		Password:      req.Password,
		Provision:     req.Provision,
		MaxJobs:       maxJobs,
		Status:        StatusOffline,
		State:         StateStopped,
	}
}

// IsEligible reports whether w may be selected by the dispatch loop:
// started and online. Paused or offline workers are never selected (B4).
func (w Worker) IsEligible() bool {
	return w.State == StateStarted && w.Status == StatusOnline
}

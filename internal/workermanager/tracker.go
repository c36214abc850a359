// Package workermanager owns everything that touches a worker's live
// process or SSH session: provisioning, start/stop, health monitoring and
// deletion. internal/workerservice owns the row, including the pause/resume
// state toggles.
package workermanager

import (
	"sync"
	"time"
)

// DeployStepStatus is the state of one step in a deployment's 7-step
// tracker.
type DeployStepStatus string

const (
	StepPending DeployStepStatus = "pending"
	StepRunning DeployStepStatus = "running"
	StepDone    DeployStepStatus = "done"
	StepFailed  DeployStepStatus = "failed"
)

// deploySteps names the 7 steps of remote provisioning in order; StepNumber
// in DeployStatus is 1-indexed into this slice.
var deploySteps = [...]string{
	"generate ssh keypair",
	"authorize public key on remote host",
	"bootstrap remote directory tree",
	"upload distributable",
	"install distributable",
	"write remote worker config",
	"start remote agent",
}

const TotalDeploySteps = len(deploySteps)

// DeployStatus is a snapshot of one in-flight or finished deployment,
// keyed by "<worker_name>_<epoch>" so a retried deployment for the same
// worker gets its own tracking row.
type DeployStatus struct {
	Key         string
	WorkerName  string
	CurrentStep string
	StepNumber  int
	TotalSteps  int
	Status      DeployStepStatus
	StartedAt   time.Time
	LastUpdated time.Time
	Error       string
}

// staleAfter is how long a deployment may go without a step update before
// the tracker considers it abandoned (e.g. the manager process died
// mid-deploy) and reports it as failed on read.
const staleAfter = 2 * time.Minute

// DeployTracker holds in-memory deployment progress. It is not persisted:
// a restart loses in-flight deployment history, which is acceptable since
// the worker row itself (status=error) survives in postgres.
type DeployTracker struct {
	mu    sync.Mutex
	byKey map[string]*DeployStatus
}

func NewDeployTracker() *DeployTracker {
	return &DeployTracker{byKey: make(map[string]*DeployStatus)}
}

func deployKey(workerName string, epoch int64) string {
	return workerName + "_" + formatEpoch(epoch)
}

func formatEpoch(epoch int64) string {
	if epoch == 0 {
		return "0"
	}
	neg := epoch < 0
	if neg {
		epoch = -epoch
	}
	var buf [20]byte
	i := len(buf)
	for epoch > 0 {
		i--
		buf[i] = byte('0' + epoch%10)
		epoch /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Start registers a new deployment at step 1.
func (t *DeployTracker) Start(workerName string, epoch int64) *DeployStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	s := &DeployStatus{
		Key:         deployKey(workerName, epoch),
		WorkerName:  workerName,
		CurrentStep: deploySteps[0],
		StepNumber:  1,
		TotalSteps:  TotalDeploySteps,
		Status:      StepRunning,
		StartedAt:   now,
		LastUpdated: now,
	}
	t.byKey[s.Key] = s
	return s
}

// Advance moves the named deployment to step n (1-indexed).
func (t *DeployTracker) Advance(key string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byKey[key]
	if !ok || n < 1 || n > TotalDeploySteps {
		return
	}
	s.StepNumber = n
	s.CurrentStep = deploySteps[n-1]
	s.Status = StepRunning
	s.LastUpdated = time.Now()
}

// Finish marks the deployment complete.
func (t *DeployTracker) Finish(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.byKey[key]; ok {
		s.Status = StepDone
		s.StepNumber = TotalDeploySteps
		s.CurrentStep = deploySteps[TotalDeploySteps-1]
		s.LastUpdated = time.Now()
	}
}

// Fail records a terminal failure with the given message.
func (t *DeployTracker) Fail(key, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.byKey[key]; ok {
		s.Status = StepFailed
		s.Error = message
		s.LastUpdated = time.Now()
	}
}

// Get returns a snapshot of the deployment, with staleness applied: a
// running deployment whose last update is older than staleAfter is
// reported as failed rather than forever "running".
func (t *DeployTracker) Get(key string) (DeployStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byKey[key]
	if !ok {
		return DeployStatus{}, false
	}
	snapshot := *s
	if snapshot.Status == StepRunning && time.Since(snapshot.LastUpdated) > staleAfter {
		snapshot.Status = StepFailed
		snapshot.Error = "deployment stalled: no progress for over 2 minutes"
	}
	return snapshot, true
}

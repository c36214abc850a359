package workermanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/worker"
)

// agentHealthResponse mirrors workeragent's GET /health body.
type agentHealthResponse struct {
	Status      string `json:"status"`
	RunningJobs int    `json:"running_jobs"`
	MaxJobs     int    `json:"max_jobs"`
}

// breakerState gates repeated probe failures per worker with a small
// closed/open/half-open circuit breaker: after a
// run of consecutive failures the breaker opens and probes are skipped
// until a cooldown elapses, so a single unreachable host can't make the
// monitor loop spend its whole tick timing out against it.
type breakerState struct {
	state               string // "closed" | "open" | "half_open"
	consecutiveFailures int
	openedAt            time.Time
}

const (
	breakerFailureThreshold = 3
	breakerCooldown         = 15 * time.Second
)

// HealthMonitor periodically reconciles worker liveness per §4.5: local
// workers are first checked against the manager's own subprocess tracking
// and, failing that, the process table; every worker still believed
// started is then probed over its agent's /health endpoint.
type HealthMonitor struct {
	workers  WorkersRepo
	local    *Manager
	client   *http.Client
	interval time.Duration

	mu       sync.Mutex
	breakers map[string]*breakerState
}

// NewHealthMonitor builds a monitor with the given poll interval; an
// interval outside the allowed 5-300s range is replaced by the 30s
// default rather than clamped to the nearest bound. local is the same
// Manager StartLocal/StopLocal run against; it may be nil in tests that
// only exercise the remote HTTP probe.
func NewHealthMonitor(workers WorkersRepo, local *Manager, interval time.Duration) *HealthMonitor {
	if interval < 5*time.Second || interval > 300*time.Second {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		workers:  workers,
		local:    local,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: interval,
		breakers: make(map[string]*breakerState),
	}
}

func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *HealthMonitor) tick(ctx context.Context) {
	workers, err := m.workers.List(ctx)
	if err != nil {
		slog.Error("workermanager.health_tick_list_failed", "err", err)
		return
	}

	for _, w := range workers {
		if w.State == worker.StateStopped || w.State == worker.StatePaused {
			continue
		}
		if w.WorkerType == worker.TypeLocal && m.local != nil && m.reconcileLocal(ctx, w) {
			continue
		}
		m.probe(ctx, w)
	}
}

// reconcileLocal implements §4.5 bullets 1-2 for a local worker: a
// tracked subprocess that has already exited, or an untracked one that
// no longer shows up in the process table, is stopped outright without
// ever reaching the HTTP probe. Returns true when it has fully handled
// w (no probe needed), false when w still looks alive and bullet 3's
// probe should run as usual.
func (m *HealthMonitor) reconcileLocal(ctx context.Context, w worker.Worker) bool {
	tracked, exited := m.local.LocalProcessExited(w.Name)
	if tracked {
		if !exited {
			return false
		}
		m.markLocalStopped(ctx, w, "local process exited")
		return true
	}

	if LocalProcessRunning(w.Port) {
		return false
	}
	m.markLocalStopped(ctx, w, "local process not found")
	return true
}

func (m *HealthMonitor) markLocalStopped(ctx context.Context, w worker.Worker, reason string) {
	if err := m.workers.SetState(ctx, w.Name, worker.StateStopped); err != nil {
		slog.Error("workermanager.set_state_failed", "worker", w.Name, "err", err)
	}
	m.setStatus(ctx, w, worker.StatusOffline, reason)
}

func (m *HealthMonitor) probe(ctx context.Context, w worker.Worker) {
	if !m.allowProbe(w.Name) {
		return
	}

	host := w.IPAddress
	if host == "" {
		host = w.Hostname
	}
	if host == "" {
		host = "127.0.0.1"
	}

	url := fmt.Sprintf("http://%s:%d/health", host, w.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.afterProbe(w.Name, false)
		return
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.afterProbe(w.Name, false)
		m.setStatus(ctx, w, worker.StatusOffline, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.afterProbe(w.Name, false)
		m.setStatus(ctx, w, worker.StatusOffline, fmt.Sprintf("health check returned %s", resp.Status))
		return
	}

	var body agentHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		m.afterProbe(w.Name, false)
		return
	}

	m.afterProbe(w.Name, true)
	m.setStatus(ctx, w, worker.StatusOnline, "")
}

func (m *HealthMonitor) setStatus(ctx context.Context, w worker.Worker, status worker.Status, errMsg string) {
	if w.Status == status {
		return
	}
	if err := m.workers.SetStatus(ctx, w.Name, status, errMsg); err != nil {
		slog.Error("workermanager.set_status_failed", "worker", w.Name, "err", err)
	}
}

func (m *HealthMonitor) allowProbe(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[name]
	if !ok {
		b = &breakerState{state: "closed"}
		m.breakers[name] = b
	}

	switch b.state {
	case "open":
		if time.Since(b.openedAt) >= breakerCooldown {
			b.state = "half_open"
			return true
		}
		return false
	default:
		return true
	}
}

func (m *HealthMonitor) afterProbe(name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.breakers[name]
	if b == nil {
		return
	}

	if ok {
		b.consecutiveFailures = 0
		b.state = "closed"
		return
	}

	b.consecutiveFailures++
	if b.state == "half_open" || b.consecutiveFailures >= breakerFailureThreshold {
		b.state = "open"
		b.openedAt = time.Now()
	}
}

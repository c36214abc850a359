package workermanager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/worker"
)

// WorkersRepo is the narrow slice of workerservice's repo this package
// needs to reconcile process liveness back into postgres.
type WorkersRepo interface {
	GetByName(ctx context.Context, name string) (worker.Worker, error)
	List(ctx context.Context) ([]worker.Worker, error)
	SetStatus(ctx context.Context, name string, status worker.Status, errMsg string) error
	SetState(ctx context.Context, name string, state worker.State) error
	Delete(ctx context.Context, name string) error
}

type Config struct {
	BaseDir            string // persisted state root, holding etc/, logs/, tmp/
	AppName            string // remote install directory name
	AgentBinaryPath    string // local path to the workeragent binary, for local spawn and remote upload
	AgentDefaultPort   int
	SSHDialTimeout     time.Duration
	DeployStepTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.AgentDefaultPort == 0 {
		c.AgentDefaultPort = 8900
	}
	if c.SSHDialTimeout == 0 {
		c.SSHDialTimeout = 10 * time.Second
	}
	if c.DeployStepTimeout == 0 {
		c.DeployStepTimeout = 60 * time.Second
	}
}

// localProc tracks a locally spawned agent subprocess. done is closed by
// the reaping goroutine once cmd.Wait returns, so HealthMonitor can check
// liveness without racing the wait itself.
type localProc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Manager owns worker lifecycle operations that workerservice deliberately
// does not: process spawn/kill, SSH provisioning, and health monitoring.
type Manager struct {
	cfg     Config
	workers WorkersRepo
	tracker *DeployTracker

	localMu sync.Mutex
	local   map[string]*localProc // worker name -> locally spawned agent process
}

func New(cfg Config, workers WorkersRepo) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:     cfg,
		workers: workers,
		tracker: NewDeployTracker(),
		local:   make(map[string]*localProc),
	}
}

func (m *Manager) Tracker() *DeployTracker { return m.tracker }

// Provision runs the 6-step remote bootstrap of §4.5 for a remote worker,
// recording progress in the deploy tracker under "<name>_<epoch>".
func (m *Manager) Provision(ctx context.Context, w worker.Worker) error {
	if w.WorkerType != worker.TypeRemote {
		return fmt.Errorf("provision: worker %q is not remote", w.Name)
	}

	epoch := time.Now().Unix()
	key := deployKey(w.Name, epoch)
	status := m.tracker.Start(w.Name, epoch)
	_ = status

	fail := func(step int, err error) error {
		m.tracker.Fail(key, err.Error())
		_ = m.workers.SetStatus(ctx, w.Name, worker.StatusError, err.Error())
		return fmt.Errorf("provision step %d/%d (%s): %w", step, TotalDeploySteps, deploySteps[step-1], err)
	}

	// step 1: generate ed25519 keypair
	privPath, pubPath, err := generateKeyPair(m.cfg.BaseDir, w.Hostname, w.SSHUser)
	if err != nil {
		return fail(1, err)
	}
	pubKeyBytes, err := os.ReadFile(pubPath)
	if err != nil {
		return fail(1, err)
	}
	m.tracker.Advance(key, 2)

	// step 2: authorize the public key via password auth
	pwClient, err := dialPassword(w.Hostname, w.Port, w.SSHUser, w.Password, m.cfg.SSHDialTimeout)
	if err != nil {
		return fail(2, err)
	}
	defer pwClient.Close()
	if err := appendAuthorizedKey(pwClient, string(pubKeyBytes)); err != nil {
		return fail(2, err)
	}
	m.tracker.Advance(key, 3)

	// step 3: bootstrap remote directory tree, now over the installed key
	keyClient, err := dialKey(w.Hostname, w.Port, w.SSHUser, privPath, m.cfg.SSHDialTimeout)
	if err != nil {
		return fail(3, err)
	}
	defer keyClient.Close()
	if err := bootstrapRemoteTree(keyClient, m.cfg.AppName); err != nil {
		return fail(3, err)
	}
	m.tracker.Advance(key, 4)

	// step 4: upload the agent distributable
	if err := uploadFile(keyClient, m.cfg.AgentBinaryPath, fmt.Sprintf("~/%s/bin/workeragent", m.cfg.AppName)); err != nil {
		return fail(4, err)
	}
	m.tracker.Advance(key, 5)

	// step 5: install (mark executable)
	if _, err := runRemote(keyClient, fmt.Sprintf("chmod +x ~/%s/bin/workeragent", m.cfg.AppName)); err != nil {
		return fail(5, err)
	}
	m.tracker.Advance(key, 6)

	// step 6: write remote config
	cfgCmd := fmt.Sprintf("printf 'max_jobs=%d\\nport=%d\\n' > ~/%s/etc/workeragent.conf", w.MaxJobs, w.Port, m.cfg.AppName)
	if _, err := runRemote(keyClient, cfgCmd); err != nil {
		return fail(6, err)
	}
	m.tracker.Advance(key, 7)

	// step 7: start the remote agent, detached via nohup so it survives
	// the SSH session closing
	startCmd := fmt.Sprintf(
		"cd ~/%s && nohup ./bin/workeragent --port %d --max-jobs %d > logs/workers/%s.log 2>&1 & disown",
		m.cfg.AppName, w.Port, w.MaxJobs, w.Name,
	)
	if _, err := runRemote(keyClient, startCmd); err != nil {
		return fail(7, err)
	}

	m.tracker.Finish(key)
	return m.workers.SetStatus(ctx, w.Name, worker.StatusOnline, "")
}

// StartLocal spawns the agent binary as a local subprocess in its own
// process group, so Stop can signal the whole group rather than a single
// pid.
func (m *Manager) StartLocal(ctx context.Context, w worker.Worker) error {
	if w.WorkerType != worker.TypeLocal {
		return fmt.Errorf("start_local: worker %q is not local", w.Name)
	}

	cmd := exec.CommandContext(context.Background(), m.cfg.AgentBinaryPath,
		"--port", fmt.Sprintf("%d", w.Port),
		"--max-jobs", fmt.Sprintf("%d", w.MaxJobs),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = logFileFor(m.cfg.BaseDir, w.Name)
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		_ = m.workers.SetStatus(ctx, w.Name, worker.StatusError, err.Error())
		return fmt.Errorf("start local agent: %w", err)
	}
	lp := &localProc{cmd: cmd, done: make(chan struct{})}
	m.localMu.Lock()
	m.local[w.Name] = lp
	m.localMu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(lp.done)
	}()

	return m.workers.SetStatus(ctx, w.Name, worker.StatusOnline, "")
}

// StopLocal signals the local agent's process group (TERM, then KILL after
// 5s) and removes it from tracking.
func (m *Manager) StopLocal(ctx context.Context, w worker.Worker) error {
	m.localMu.Lock()
	lp, ok := m.local[w.Name]
	m.localMu.Unlock()
	if !ok || lp.cmd.Process == nil {
		return nil
	}

	pgid, err := syscall.Getpgid(lp.cmd.Process.Pid)
	if err == nil {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
	}

	select {
	case <-lp.done:
	case <-time.After(5 * time.Second):
		if err == nil {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		}
		<-lp.done
	}

	m.localMu.Lock()
	delete(m.local, w.Name)
	m.localMu.Unlock()
	return m.workers.SetStatus(ctx, w.Name, worker.StatusOffline, "")
}

// LocalProcessExited reports whether name is tracked as a locally spawned
// agent and, if so, whether its process has already exited. An exited
// process is cleared from tracking so a later StartLocal can retrack the
// name cleanly.
func (m *Manager) LocalProcessExited(name string) (tracked, exited bool) {
	m.localMu.Lock()
	defer m.localMu.Unlock()

	lp, ok := m.local[name]
	if !ok {
		return false, false
	}
	select {
	case <-lp.done:
		delete(m.local, name)
		return true, true
	default:
		return true, false
	}
}

// LocalProcessRunning scans the process table for a workeragent process
// bound to port, the same command-signature check the original used (ps
// output grepped for the agent binary name and its listening port) to
// find a local worker's pid when the manager process itself has no
// record of having spawned it.
func LocalProcessRunning(port int) bool {
	out, err := exec.Command("ps", "ax", "-o", "args=").Output()
	if err != nil {
		return false
	}
	needle := fmt.Sprintf("--port %d", port)
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "workeragent") && strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

// StopRemote kills the agent process on a remote host by name, since the
// manager process does not hold the remote pid across restarts.
func (m *Manager) StopRemote(ctx context.Context, w worker.Worker, privateKeyPath string) error {
	client, err := dialKey(w.Hostname, w.Port, w.SSHUser, privateKeyPath, m.cfg.SSHDialTimeout)
	if err != nil {
		return fmt.Errorf("stop_remote: dial: %w", err)
	}
	defer client.Close()

	if _, err := runRemote(client, "pkill -f workeragent || true"); err != nil {
		return fmt.Errorf("stop_remote: %w", err)
	}
	return m.workers.SetStatus(ctx, w.Name, worker.StatusOffline, "")
}

// Delete forbids removing the System worker, then best-effort tears down
// remote install artifacts (uninstall, remove tree, revoke authorized_keys
// line) before removing the row; local key files are always cleaned up.
func (m *Manager) Delete(ctx context.Context, w worker.Worker) error {
	if w.Name == worker.SystemWorkerName {
		return worker.ErrSystemUndeletable
	}

	if w.WorkerType == worker.TypeRemote {
		privPath, _ := sshKeyPaths(m.cfg.BaseDir, w.Hostname, w.SSHUser)
		if client, err := dialKey(w.Hostname, w.Port, w.SSHUser, privPath, m.cfg.SSHDialTimeout); err == nil {
			_, _ = runRemote(client, fmt.Sprintf("rm -rf ~/%s", m.cfg.AppName))
			_, _ = runRemote(client, "sed -i '/dispatch-generated/d' ~/.ssh/authorized_keys 2>/dev/null || true")
			client.Close()
		}
	}

	privPath, pubPath := sshKeyPaths(m.cfg.BaseDir, w.Hostname, w.SSHUser)
	_ = os.Remove(privPath)
	_ = os.Remove(pubPath)

	return m.workers.Delete(ctx, w.Name)
}

func logFileFor(baseDir, workerName string) *os.File {
	path := filepath.Join(baseDir, "logs", "workers", workerName+".log")
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil
	}
	return f
}

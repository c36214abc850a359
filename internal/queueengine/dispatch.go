package queueengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/dispatch/internal/commandtemplate"
	"github.com/geocoder89/dispatch/internal/domain/job"
	"github.com/geocoder89/dispatch/internal/domain/queuespec"
)

type dispatchOutcome int

const (
	outcomeAssigned dispatchOutcome = iota
	outcomeTemporary
	outcomePermanent
)

// permanentMarkers and temporaryMarkers implement §7's keyword
// classification. Temporary markers are checked first since a permanent
// marker never appears inside one of these fixed temporary messages.
var (
	temporaryMarkers = []string{
		"No workers assigned",
		"No started and online workers available",
		"No workers with available capacity",
	}
	permanentMarkers = []string{
		"rejected job",
		"Server error",
		"Failed to start command",
		"Connection refused",
		"timeout",
	}
)

// classifyDispatchError reports whether an agent-call error is permanent.
// Anything matching neither list defaults to temporary, so a job is never
// silently dropped on an error message the spec didn't anticipate.
func classifyDispatchError(err error) bool {
	msg := err.Error()
	for _, m := range temporaryMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Run starts the 5-second dispatch loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.setReady(true)
	ticker := time.NewTicker(e.cfg.DispatchInterval)
	defer ticker.Stop()

	slog.Info("queueengine.start", "interval", e.cfg.DispatchInterval)

	for {
		select {
		case <-ctx.Done():
			e.setReady(false)
			slog.Info("queueengine.stop")
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one dispatch pass: every started queue, ordered by priority,
// drains as many jobs as it can before hitting a failure.
func (e *Engine) tick(ctx context.Context) {
	queues, err := e.queues.List(ctx)
	if err != nil {
		slog.Error("dispatch.list_queues_failed", "err", err)
		return
	}

	started := make([]queuespec.Queue, 0, len(queues))
	for _, q := range queues {
		if q.State == queuespec.StateStarted {
			started = append(started, q)
		}
	}
	sort.Slice(started, func(i, j int) bool {
		return started[i].Priority.Rank() < started[j].Priority.Rank()
	})

	for _, q := range started {
		e.drainQueue(ctx, q)
	}
}

// drainQueue repeatedly pops the head job and dispatches it until the
// queue is empty or a dispatch attempt fails (requeued or failed), per
// §4.2's "drain, break to next queue on failure" rule.
func (e *Engine) drainQueue(ctx context.Context, q queuespec.Queue) {
	for {
		jobID, ok := e.popHead(q.Name)
		if !ok {
			return
		}

		j, err := e.jobs.GetByID(ctx, jobID)
		if err != nil {
			slog.Error("dispatch.load_job_failed", "job_id", jobID, "err", err)
			return
		}

		outcome, message, derr := e.dispatchOne(ctx, q, j)
		switch outcome {
		case outcomeAssigned:
			e.metrics.IncDispatched()
			if e.prom != nil {
				e.prom.DispatchAttempts.WithLabelValues(q.Name, "assigned").Inc()
			}
			continue

		case outcomePermanent:
			if e.prom != nil {
				e.prom.DispatchAttempts.WithLabelValues(q.Name, "error").Inc()
			}
			if terr := e.jobs.UpdateError(ctx, jobID, message); terr != nil {
				slog.Error("dispatch.update_error_failed", "job_id", jobID, "err", terr)
			}
			if terr := e.jobs.Transition(ctx, jobID, job.StatusFailed); terr != nil {
				slog.Error("dispatch.transition_failed_failed", "job_id", jobID, "err", terr)
			}
			e.metrics.IncFailed()
			slog.Warn("dispatch.permanent_failure", "queue", q.Name, "job_id", jobID, "reason", message, "err", derr)
			return

		default: // outcomeTemporary
			if e.prom != nil {
				e.prom.DispatchAttempts.WithLabelValues(q.Name, "no_worker").Inc()
				e.prom.DispatchRequeues.WithLabelValues(q.Name, message).Inc()
			}
			e.pushHead(q.Name, jobID)
			e.metrics.IncRequeued()
			slog.Info("dispatch.temporary_failure", "queue", q.Name, "job_id", jobID, "reason", message)
			return
		}
	}
}

// dispatchOne implements the 9-step algorithm of §4.2 for a single
// (queue, job). It never mutates the in-memory FIFO; the caller decides
// whether to requeue based on the returned outcome.
func (e *Engine) dispatchOne(ctx context.Context, q queuespec.Queue, j job.Job) (dispatchOutcome, string, error) {
	assigned, err := e.assignments.WorkersForQueue(ctx, q.Name)
	if err != nil {
		return outcomeTemporary, "assignment lookup error", err
	}
	if len(assigned) == 0 {
		return outcomeTemporary, "No workers assigned", nil
	}
	assignedSet := make(map[string]bool, len(assigned))
	for _, n := range assigned {
		assignedSet[n] = true
	}

	eligible, load, err := e.workers.ListEligibleWithLoad(ctx)
	if err != nil {
		return outcomeTemporary, "worker lookup error", err
	}

	var (
		candidates          []candidate
		anyAssignedEligible bool
	)
	for _, w := range eligible {
		if !assignedSet[w.Name] {
			continue
		}
		anyAssignedEligible = true
		if load[w.Name] < w.MaxJobs {
			candidates = append(candidates, candidate{worker: w, load: load[w.Name]})
		}
	}

	if len(candidates) == 0 {
		if !anyAssignedEligible {
			return outcomeTemporary, "No started and online workers available", nil
		}
		return outcomeTemporary, "No workers with available capacity", nil
	}

	e.mu.Lock()
	cursor := e.rrCursor[q.Name]
	chosen, nextCursor := selectWorker(q.Strategy, candidates, cursor)
	e.rrCursor[q.Name] = nextCursor
	e.mu.Unlock()

	spec, err := e.specs.GetByName(ctx, j.Name)
	if err != nil {
		return outcomePermanent, fmt.Sprintf("specification %q not found", j.Name), err
	}

	command, args, err := buildCommand(spec.Command, j.Parameters.RuntimeArgs)
	if err != nil {
		return outcomePermanent, "failed to build command: " + err.Error(), err
	}

	executionID := q.Name + ":" + strconv.FormatInt(j.ID, 10)

	agentCtx, cancel := context.WithTimeout(ctx, e.cfg.AgentCallTimeout)
	defer cancel()

	if err := e.agent.ExecuteCommand(agentCtx, chosen, executionID, command, args); err != nil {
		if classifyDispatchError(err) {
			return outcomePermanent, err.Error(), err
		}
		return outcomeTemporary, err.Error(), err
	}

	if err := e.jobs.AssignWorker(ctx, j.ID, chosen.Name); err != nil {
		slog.Error("dispatch.assign_worker_failed", "job_id", j.ID, "worker", chosen.Name, "err", err)
	}

	return outcomeAssigned, "", nil
}

// buildCommand implements step 5: substitute {{key}} placeholders from
// runtimeArgs when the spec's command uses them; otherwise, if
// runtimeArgs is non-empty, carry it as a single JSON-encoded arg.
func buildCommand(specCommand string, runtimeArgs map[string]string) (string, []string, error) {
	if len(commandtemplate.Placeholders(specCommand)) > 0 {
		rendered, missing := commandtemplate.RenderLenient(specCommand, runtimeArgs)
		if len(missing) > 0 {
			slog.Warn("dispatch.unresolved_placeholders", "missing", missing)
		}
		return rendered, nil, nil
	}

	if len(runtimeArgs) > 0 {
		raw, err := json.Marshal(runtimeArgs)
		if err != nil {
			return "", nil, err
		}
		return specCommand, []string{string(raw)}, nil
	}

	return specCommand, nil, nil
}

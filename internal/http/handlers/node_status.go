package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// NodeStatusUpdater is the narrow jobservice surface the worker agent's
// status callback drives.
type NodeStatusUpdater interface {
	UpdateResult(ctx context.Context, id int64, result json.RawMessage) error
	UpdateError(ctx context.Context, id int64, message string) error
	MarkCompleted(ctx context.Context, id int64) error
}

// LogCloser flushes and closes the cached job-log handle for an
// execution_id once its terminal status callback arrives, implemented by
// logingest.Consumer.
type LogCloser interface {
	CloseJobLog(executionID string) error
}

type NodeStatusHandler struct {
	jobs NodeStatusUpdater
	logs LogCloser
}

func NewNodeStatusHandler(jobs NodeStatusUpdater, logs LogCloser) *NodeStatusHandler {
	return &NodeStatusHandler{jobs: jobs, logs: logs}
}

type nodeStatusRequest struct {
	ExecutionID string `json:"execution_id" binding:"required"`
	Status      string `json:"status" binding:"required"`
	ExitCode    *int   `json:"exit_code"`
	Error       string `json:"error"`
}

// POST /api/node/status — the worker agent's terminal (and running)
// status callback, per §6. A "running" status is informational only;
// completion/failure is still authoritative from the in-band RESULT=/
// ERROR= log lines where present, but a non-zero exit with no ERROR= line
// must still fail the job, which this handler guarantees.
func (h *NodeStatusHandler) Report(ctx *gin.Context) {
	var req nodeStatusRequest
	if !BindJSON(ctx, &req) {
		return
	}

	jobID, ok := jobIDFromExecutionID(req.ExecutionID)
	if !ok {
		RespondBadRequest(ctx, "invalid execution_id", nil)
		return
	}

	switch strings.ToLower(req.Status) {
	case "running":
		ctx.Status(http.StatusNoContent)
	case "completed":
		if err := h.jobs.MarkCompleted(ctx.Request.Context(), jobID); err != nil {
			RespondInternal(ctx, "could not record job completion")
			return
		}
		h.closeLog(req.ExecutionID)
		ctx.Status(http.StatusNoContent)
	case "failed", "cancelled":
		message := req.Error
		if message == "" && req.ExitCode != nil {
			message = "worker agent reported non-zero exit"
		}
		if err := h.jobs.UpdateError(ctx.Request.Context(), jobID, message); err != nil {
			RespondInternal(ctx, "could not record job failure")
			return
		}
		h.closeLog(req.ExecutionID)
		ctx.Status(http.StatusNoContent)
	default:
		RespondBadRequest(ctx, "unknown status", nil)
	}
}

// closeLog flushes and closes the cached log-ingest writer for this
// execution once its outcome is authoritative; a trailing append after
// close transparently reopens the file (P6), so this is best-effort and
// never surfaced to the caller.
func (h *NodeStatusHandler) closeLog(executionID string) {
	if h.logs == nil {
		return
	}
	_ = h.logs.CloseJobLog(executionID)
}

func jobIDFromExecutionID(executionID string) (int64, bool) {
	idx := strings.LastIndex(executionID, ":")
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(executionID[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

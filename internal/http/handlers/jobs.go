package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/job"
	"github.com/geocoder89/dispatch/internal/queueengine"
	"github.com/geocoder89/dispatch/internal/utils"
	"github.com/gin-gonic/gin"
)

// JobsService is the narrow surface handlers need from jobservice.Service.
type JobsService interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	GetByID(ctx context.Context, id int64) (job.Job, error)
	Cancel(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64) (job.Job, error)
	GetLog(id int64) ([]byte, error)
	Statistics(ctx context.Context) (map[job.Status]int64, error)
	ListCursor(ctx context.Context, status *string, queueName *string, limit int, afterCreatedAt time.Time, afterID int64) ([]job.Job, *string, bool, error)
}

type JobsHandler struct {
	jobs JobsService
}

func NewJobsHandler(jobs JobsService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

type createJobRequest struct {
	Name        string            `json:"name" binding:"required"`
	QueueName   string            `json:"queue_name"`
	RuntimeArgs map[string]string `json:"runtime_args"`
	MaxRetries  int               `json:"max_retries"`
}

func jobToJSON(j job.Job) gin.H {
	return gin.H{
		"id":                   j.ID,
		"name":                 j.Name,
		"status":               j.Status,
		"progress":             j.Progress,
		"parameters":           j.Parameters,
		"result":               j.Result,
		"error_message":        j.ErrorMessage,
		"log_file_path":        j.LogFilePath,
		"worker_name":          j.WorkerName,
		"queue_name":           j.QueueName,
		"assigned_worker_name": j.AssignedWorkerName,
		"retries":              j.Retries,
		"max_retries":          j.MaxRetries,
		"created_at":           j.CreatedAt,
		"started_at":           j.StartedAt,
		"completed_at":         j.CompletedAt,
	}
}

// POST /jobs
func (h *JobsHandler) Create(ctx *gin.Context) {
	var req createJobRequest
	if !BindJSON(ctx, &req) {
		return
	}

	subject, _ := actorSubject(ctx)

	j, err := h.jobs.Create(ctx.Request.Context(), job.CreateRequest{
		Name:        req.Name,
		QueueName:   req.QueueName,
		RuntimeArgs: req.RuntimeArgs,
		MaxRetries:  req.MaxRetries,
		CreatedBy:   subject,
	})
	if err != nil {
		if errors.Is(err, queueengine.ErrQueueNotStarted) {
			RespondConflict(ctx, "queue_not_started", "queue is not started")
			return
		}
		RespondInternal(ctx, "could not create job")
		return
	}

	ctx.JSON(http.StatusCreated, jobToJSON(j))
}

// GET /jobs/:id
func (h *JobsHandler) Get(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	j, err := h.jobs.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondInternal(ctx, "could not load job")
		return
	}

	ctx.JSON(http.StatusOK, jobToJSON(j))
}

// GET /jobs
func (h *JobsHandler) List(ctx *gin.Context) {
	var status, queueName *string
	if v := ctx.Query("status"); v != "" {
		status = &v
	}
	if v := ctx.Query("queue_name"); v != "" {
		queueName = &v
	}

	limit := 50
	if v := ctx.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var afterCreatedAt time.Time
	var afterID int64
	if cursorStr := ctx.Query("cursor"); cursorStr != "" {
		c, err := utils.DecodeJobCursor(cursorStr)
		if err != nil {
			RespondBadRequest(ctx, "invalid cursor", nil)
			return
		}
		afterCreatedAt, afterID = c.CreatedAt, c.ID
	}

	jobs, nextCursor, hasMore, err := h.jobs.ListCursor(ctx.Request.Context(), status, queueName, limit, afterCreatedAt, afterID)
	if err != nil {
		RespondInternal(ctx, "could not list jobs")
		return
	}

	items := make([]gin.H, len(jobs))
	for i, j := range jobs {
		items[i] = jobToJSON(j)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":    items,
		"cursor":   nextCursor,
		"has_more": hasMore,
	})
}

// POST /jobs/:id/cancel
func (h *JobsHandler) Cancel(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	if err := h.jobs.Cancel(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondConflict(ctx, "invalid_transition", err.Error())
		return
	}

	ctx.Status(http.StatusNoContent)
}

// POST /jobs/:id/retry
func (h *JobsHandler) Retry(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	newJob, err := h.jobs.Retry(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondConflict(ctx, "invalid_retry", err.Error())
		return
	}

	ctx.JSON(http.StatusCreated, jobToJSON(newJob))
}

// GET /jobs/:id/log
func (h *JobsHandler) Log(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	data, err := h.jobs.GetLog(id)
	if err != nil {
		RespondNotFound(ctx, "log not found")
		return
	}

	ctx.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// GET /jobs/statistics
func (h *JobsHandler) Statistics(ctx *gin.Context) {
	stats, err := h.jobs.Statistics(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, "could not load statistics")
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

func parseJobID(ctx *gin.Context) (int64, bool) {
	n, err := parsePositiveInt(ctx.Param("id"))
	if err != nil || n <= 0 {
		RespondBadRequest(ctx, "invalid job id", nil)
		return 0, false
	}
	return int64(n), true
}

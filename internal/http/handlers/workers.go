package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/dispatch/internal/domain/worker"
	"github.com/gin-gonic/gin"
)

type WorkersService interface {
	Create(ctx context.Context, req worker.CreateRequest) (worker.Worker, error)
	GetByName(ctx context.Context, name string) (worker.Worker, error)
	List(ctx context.Context) ([]worker.Worker, error)
	UpdateMaxJobs(ctx context.Context, name string, maxJobs int) error
	Delete(ctx context.Context, name string) error
	AssignToQueue(ctx context.Context, queueName, workerName string) error
	UnassignFromQueue(ctx context.Context, queueName, workerName string) error
	QueuesForWorker(ctx context.Context, workerName string) ([]string, error)
	Pause(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error
}

// WorkersLifecycle is the narrow internal/workermanager surface used for
// actions that touch a live process or SSH session rather than just the
// worker row.
type WorkersLifecycle interface {
	Provision(ctx context.Context, w worker.Worker) error
	StartLocal(ctx context.Context, w worker.Worker) error
	StopLocal(ctx context.Context, w worker.Worker) error
	Delete(ctx context.Context, w worker.Worker) error
}

type WorkersHandler struct {
	workers   WorkersService
	lifecycle WorkersLifecycle
}

func NewWorkersHandler(workers WorkersService, lifecycle WorkersLifecycle) *WorkersHandler {
	return &WorkersHandler{workers: workers, lifecycle: lifecycle}
}

type createWorkerRequest struct {
	Name          string            `json:"name" binding:"required"`
	WorkerType    worker.Type       `json:"worker_type" binding:"required"`
	Hostname      string            `json:"hostname"`
	IPAddress     string            `json:"ip_address"`
	Port          int               `json:"port"`
	SSHUser       string            `json:"ssh_user"`
	AuthMethod    worker.AuthMethod `json:"auth_method"`
	SSHPrivateKey string            `json:"ssh_private_key"`
	Password      string            `json:"password"`
	Provision     bool              `json:"provision"`
	MaxJobs       int               `json:"max_jobs"`
}

// POST /workers
func (h *WorkersHandler) Create(ctx *gin.Context) {
	var req createWorkerRequest
	if !BindJSON(ctx, &req) {
		return
	}

	w, err := h.workers.Create(ctx.Request.Context(), worker.CreateRequest{
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
		MaxJobs:       req.MaxJobs,
	})
	if err != nil {
		RespondInternal(ctx, "could not create worker")
		return
	}

	if req.Provision && w.WorkerType == worker.TypeRemote {
		go func() {
			_ = h.lifecycle.Provision(context.Background(), w)
		}()
	} else if w.WorkerType == worker.TypeLocal {
		go func() {
			_ = h.lifecycle.StartLocal(context.Background(), w)
		}()
	}

	ctx.JSON(http.StatusCreated, w)
}

// GET /workers/:name
func (h *WorkersHandler) Get(ctx *gin.Context) {
	name := ctx.Param("name")
	w, err := h.workers.GetByName(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			RespondNotFound(ctx, "worker not found")
			return
		}
		RespondInternal(ctx, "could not load worker")
		return
	}
	ctx.JSON(http.StatusOK, w)
}

// GET /workers
func (h *WorkersHandler) List(ctx *gin.Context) {
	items, err := h.workers.List(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, "could not list workers")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

// DELETE /workers/:name
func (h *WorkersHandler) Delete(ctx *gin.Context) {
	name := ctx.Param("name")
	w, err := h.workers.GetByName(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			RespondNotFound(ctx, "worker not found")
			return
		}
		RespondInternal(ctx, "could not load worker")
		return
	}

	if err := h.lifecycle.Delete(ctx.Request.Context(), w); err != nil {
		if errors.Is(err, worker.ErrSystemUndeletable) {
			RespondConflict(ctx, "system_worker", err.Error())
			return
		}
		RespondInternal(ctx, "could not delete worker")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// POST /workers/:name/pause
func (h *WorkersHandler) Pause(ctx *gin.Context) {
	name := ctx.Param("name")
	if err := h.workers.Pause(ctx.Request.Context(), name); err != nil {
		RespondInternal(ctx, "could not pause worker")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// POST /workers/:name/resume
func (h *WorkersHandler) Resume(ctx *gin.Context) {
	name := ctx.Param("name")
	if err := h.workers.Resume(ctx.Request.Context(), name); err != nil {
		RespondInternal(ctx, "could not resume worker")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// POST /workers/:name/stop
func (h *WorkersHandler) Stop(ctx *gin.Context) {
	name := ctx.Param("name")
	w, err := h.workers.GetByName(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			RespondNotFound(ctx, "worker not found")
			return
		}
		RespondInternal(ctx, "could not load worker")
		return
	}

	if w.WorkerType == worker.TypeLocal {
		if err := h.lifecycle.StopLocal(ctx.Request.Context(), w); err != nil {
			RespondInternal(ctx, "could not stop worker")
			return
		}
	}
	ctx.Status(http.StatusNoContent)
}

type assignQueueRequest struct {
	QueueName string `json:"queue_name" binding:"required"`
}

// POST /workers/:name/queues
func (h *WorkersHandler) AssignQueue(ctx *gin.Context) {
	name := ctx.Param("name")
	var req assignQueueRequest
	if !BindJSON(ctx, &req) {
		return
	}
	if err := h.workers.AssignToQueue(ctx.Request.Context(), req.QueueName, name); err != nil {
		RespondInternal(ctx, "could not assign worker to queue")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// DELETE /workers/:name/queues/:queue
func (h *WorkersHandler) UnassignQueue(ctx *gin.Context) {
	name := ctx.Param("name")
	queueName := ctx.Param("queue")
	if err := h.workers.UnassignFromQueue(ctx.Request.Context(), queueName, name); err != nil {
		RespondInternal(ctx, "could not unassign worker from queue")
		return
	}
	ctx.Status(http.StatusNoContent)
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/dispatch/internal/domain/queuespec"
	"github.com/gin-gonic/gin"
)

type QueuesService interface {
	Create(ctx context.Context, req queuespec.CreateRequest) (queuespec.Queue, error)
	GetByName(ctx context.Context, name string) (queuespec.Queue, error)
	List(ctx context.Context) ([]queuespec.Queue, error)
	SetState(ctx context.Context, name string, state queuespec.State) error
	SetDefault(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
}

type QueuesHandler struct {
	queues QueuesService
}

func NewQueuesHandler(queues QueuesService) *QueuesHandler {
	return &QueuesHandler{queues: queues}
}

type createQueueRequest struct {
	Name             string             `json:"name" binding:"required"`
	Priority         queuespec.Priority `json:"priority"`
	Strategy         queuespec.Strategy `json:"strategy"`
	TimeLimitSeconds int                `json:"time_limit_seconds"`
	IsDefault        bool               `json:"is_default"`
}

// POST /queues
func (h *QueuesHandler) Create(ctx *gin.Context) {
	var req createQueueRequest
	if !BindJSON(ctx, &req) {
		return
	}

	q, err := h.queues.Create(ctx.Request.Context(), queuespec.CreateRequest{
		Name:             req.Name,
		Priority:         req.Priority,
		Strategy:         req.Strategy,
		TimeLimitSeconds: req.TimeLimitSeconds,
		IsDefault:        req.IsDefault,
	})
	if err != nil {
		RespondInternal(ctx, "could not create queue")
		return
	}
	ctx.JSON(http.StatusCreated, q)
}

// GET /queues/:name
func (h *QueuesHandler) Get(ctx *gin.Context) {
	name := ctx.Param("name")
	q, err := h.queues.GetByName(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, queuespec.ErrNotFound) {
			RespondNotFound(ctx, "queue not found")
			return
		}
		RespondInternal(ctx, "could not load queue")
		return
	}
	ctx.JSON(http.StatusOK, q)
}

// GET /queues
func (h *QueuesHandler) List(ctx *gin.Context) {
	items, err := h.queues.List(ctx.Request.Context())
	if err != nil {
		RespondInternal(ctx, "could not list queues")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

type setQueueStateRequest struct {
	State queuespec.State `json:"state" binding:"required"`
}

// PUT /queues/:name/state
func (h *QueuesHandler) SetState(ctx *gin.Context) {
	name := ctx.Param("name")
	var req setQueueStateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.queues.SetState(ctx.Request.Context(), name, req.State); err != nil {
		if errors.Is(err, queuespec.ErrNotFound) {
			RespondNotFound(ctx, "queue not found")
			return
		}
		RespondInternal(ctx, "could not set queue state")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// PUT /queues/:name/default
func (h *QueuesHandler) SetDefault(ctx *gin.Context) {
	name := ctx.Param("name")
	if err := h.queues.SetDefault(ctx.Request.Context(), name); err != nil {
		if errors.Is(err, queuespec.ErrNotFound) {
			RespondNotFound(ctx, "queue not found")
			return
		}
		RespondInternal(ctx, "could not set default queue")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// DELETE /queues/:name
func (h *QueuesHandler) Delete(ctx *gin.Context) {
	name := ctx.Param("name")
	if err := h.queues.Delete(ctx.Request.Context(), name); err != nil {
		if errors.Is(err, queuespec.ErrNotFound) {
			RespondNotFound(ctx, "queue not found")
			return
		}
		RespondInternal(ctx, "could not delete queue")
		return
	}
	ctx.Status(http.StatusNoContent)
}

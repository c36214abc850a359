package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/dispatch/internal/domain/specification"
	"github.com/geocoder89/dispatch/internal/specservice"
	"github.com/gin-gonic/gin"
)

type SpecificationsService interface {
	Create(ctx context.Context, req specification.CreateRequest) (specification.Specification, error)
	GetByName(ctx context.Context, name string) (specification.Specification, error)
	List(ctx context.Context, activeOnly bool) ([]specification.Specification, error)
	Update(ctx context.Context, name, description, command string, isActive bool) error
	Delete(ctx context.Context, name string) error
}

type SpecificationsHandler struct {
	specs SpecificationsService
}

func NewSpecificationsHandler(specs SpecificationsService) *SpecificationsHandler {
	return &SpecificationsHandler{specs: specs}
}

type specificationRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Command     string `json:"command" binding:"required"`
}

// POST /specifications
func (h *SpecificationsHandler) Create(ctx *gin.Context) {
	var req specificationRequest
	if !BindJSON(ctx, &req) {
		return
	}

	s, err := h.specs.Create(ctx.Request.Context(), specification.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Command:     req.Command,
	})
	if err != nil {
		if errors.Is(err, specservice.ErrDuplicateActiveName) {
			RespondConflict(ctx, "duplicate_name", "an active specification with this name already exists")
			return
		}
		RespondInternal(ctx, "could not create specification")
		return
	}

	ctx.JSON(http.StatusCreated, s)
}

// GET /specifications/:name
func (h *SpecificationsHandler) Get(ctx *gin.Context) {
	name := ctx.Param("name")
	s, err := h.specs.GetByName(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, specification.ErrNotFound) {
			RespondNotFound(ctx, "specification not found")
			return
		}
		RespondInternal(ctx, "could not load specification")
		return
	}
	ctx.JSON(http.StatusOK, s)
}

// GET /specifications?active_only=true
func (h *SpecificationsHandler) List(ctx *gin.Context) {
	activeOnly := ctx.Query("active_only") != "false"

	items, err := h.specs.List(ctx.Request.Context(), activeOnly)
	if err != nil {
		RespondInternal(ctx, "could not list specifications")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

type updateSpecificationRequest struct {
	Description string `json:"description"`
	Command     string `json:"command" binding:"required"`
	IsActive    bool   `json:"is_active"`
}

// PUT /specifications/:name
func (h *SpecificationsHandler) Update(ctx *gin.Context) {
	name := ctx.Param("name")
	var req updateSpecificationRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.specs.Update(ctx.Request.Context(), name, req.Description, req.Command, req.IsActive); err != nil {
		if errors.Is(err, specification.ErrNotFound) {
			RespondNotFound(ctx, "specification not found")
			return
		}
		RespondInternal(ctx, "could not update specification")
		return
	}

	s, err := h.specs.GetByName(ctx.Request.Context(), name)
	if err != nil {
		RespondInternal(ctx, "could not reload specification")
		return
	}
	ctx.JSON(http.StatusOK, s)
}

// DELETE /specifications/:name
func (h *SpecificationsHandler) Delete(ctx *gin.Context) {
	name := ctx.Param("name")
	if err := h.specs.Delete(ctx.Request.Context(), name); err != nil {
		if errors.Is(err, specification.ErrNotFound) {
			RespondNotFound(ctx, "specification not found")
			return
		}
		RespondInternal(ctx, "could not delete specification")
		return
	}
	ctx.Status(http.StatusNoContent)
}

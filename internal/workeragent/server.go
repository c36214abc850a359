package workeragent

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Config is the agent's live-reloadable tuning, matched by PUT /config.
type Config struct {
	MaxJobs int `json:"max_jobs"`
}

type executeRequest struct {
	ExecutionID string `json:"execution_id" binding:"required"`
	// Command and Args are base64-encoded per §4.3, so that shell
	// metacharacters in the dispatcher's rendered command never need
	// JSON-string escaping.
	Command string   `json:"command" binding:"required"`
	Args    []string `json:"args"`
}

type statusResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      Status `json:"status"`
	ExitCode    int    `json:"exit_code"`
	PID         int    `json:"pid"`
}

type healthResponse struct {
	Status      string `json:"status"`
	RunningJobs int    `json:"running_jobs"`
	MaxJobs     int    `json:"max_jobs"`
}

// NewRouter wires the agent's HTTP surface described in §4.3.
func NewRouter(executor *Executor) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/execute", handleExecute(executor))
	r.GET("/status/:id", handleStatus(executor))
	r.DELETE("/execute/:id", handleCancel(executor))
	r.GET("/health", handleHealth(executor))
	r.PUT("/config", handleConfig(executor))

	return r
}

func handleExecute(executor *Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req executeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		command, err := base64.StdEncoding.DecodeString(req.Command)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "command is not valid base64"})
			return
		}

		args := make([]string, 0, len(req.Args))
		for _, a := range req.Args {
			decoded, err := base64.StdEncoding.DecodeString(a)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "args entry is not valid base64"})
				return
			}
			args = append(args, string(decoded))
		}

		pid, err := executor.Execute(c.Request.Context(), req.ExecutionID, string(command), args)
		switch {
		case errors.Is(err, ErrAtCapacity):
			c.JSON(http.StatusConflict, gin.H{"error": "rejected job: no spare capacity"})
		case errors.Is(err, ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "rejected job: execution_id already running"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusAccepted, gin.H{"execution_id": req.ExecutionID, "pid": pid})
		}
	}
}

func handleStatus(executor *Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		status, exitCode, pid, err := executor.Status(id)
		if errors.Is(err, ErrExecutionUnknown) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution_id"})
			return
		}
		c.JSON(http.StatusOK, statusResponse{ExecutionID: id, Status: status, ExitCode: exitCode, PID: pid})
	}
}

func handleCancel(executor *Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := executor.Cancel(c.Request.Context(), id); err != nil {
			if errors.Is(err, ErrExecutionUnknown) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution_id"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleHealth(executor *Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{
			Status:      "healthy",
			RunningJobs: executor.RunningCount(),
			MaxJobs:     executor.MaxJobs(),
		})
	}
}

func handleConfig(executor *Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg Config
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if cfg.MaxJobs < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_jobs must be >= 0"})
			return
		}
		executor.SetMaxJobs(cfg.MaxJobs)
		c.JSON(http.StatusOK, cfg)
	}
}

package http

import (
	"context"
	"time"

	"github.com/geocoder89/dispatch/internal/auth"
	"github.com/geocoder89/dispatch/internal/broker"
	"github.com/geocoder89/dispatch/internal/config"
	"github.com/geocoder89/dispatch/internal/http/handlers"
	"github.com/geocoder89/dispatch/internal/http/middlewares"
	"github.com/geocoder89/dispatch/internal/jobservice"
	"github.com/geocoder89/dispatch/internal/logingest"
	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/geocoder89/dispatch/internal/queueengine"
	"github.com/geocoder89/dispatch/internal/queueservice"
	"github.com/geocoder89/dispatch/internal/repo/postgres"
	"github.com/geocoder89/dispatch/internal/specservice"
	"github.com/geocoder89/dispatch/internal/workermanager"
	"github.com/geocoder89/dispatch/internal/workerservice"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter wires the HTTP surface of §4: job/specification/queue/worker
// CRUD for operators, the worker agent's status callback, and health
// checks. Every repo and service is built here, the same way the source
// router built its handlers inline.
func NewRouter(
	pool *pgxpool.Pool,
	prom *observability.Prom,
	cfg config.Config,
	engine *queueengine.Engine,
	brokerClient *broker.Client,
	workerMgr *workermanager.Manager,
	logConsumer *logingest.Consumer,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("dispatch-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20)) // 1MB max body
	r.Use(middlewares.RequireJSON())

	readyCheck := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return err
		}

		ctx2, cancel2 := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel2()
		if err := brokerClient.Ping(ctx2); err != nil {
			return err
		}

		if engine != nil && !engine.Ready() {
			return errNotReconciled
		}
		return nil
	}

	// repositories
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	specsRepo := postgres.NewSpecificationsRepo(pool, prom)
	queuesRepo := postgres.NewQueuesRepo(pool, prom)
	workersRepo := postgres.NewWorkersRepo(pool, prom)
	assignmentsRepo := postgres.NewQueueWorkerAssignmentsRepo(pool, prom)

	// services
	jobsSvc := jobservice.New(jobsRepo, engine, cfg.JobsLogDir())
	specsSvc := specservice.New(specsRepo)
	queuesSvc := queueservice.New(queuesRepo)
	workersSvc := workerservice.New(workersRepo, assignmentsRepo)

	// auth
	jwtManager := auth.NewManager(cfg.ServiceToken, 365*24*time.Hour)
	authMiddleware := middlewares.NewAuthMiddleware(jwtManager)

	// handlers
	healthHandler := handlers.NewHealthHandler(readyCheck)
	jobsHandler := handlers.NewJobsHandler(jobsSvc)
	specsHandler := handlers.NewSpecificationsHandler(specsSvc)
	queuesHandler := handlers.NewQueuesHandler(queuesSvc)
	workersHandler := handlers.NewWorkersHandler(workersSvc, workerMgr)
	nodeStatusHandler := handlers.NewNodeStatusHandler(jobsSvc, logConsumer)

	agentLimiter := middlewares.NewRateLimiter(120, 1*time.Minute)

	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	// the worker agent reports status as the "agent" role, rate-limited
	// per caller so a misbehaving agent cannot starve the dispatch loop.
	agent := r.Group("/api")
	agent.Use(authMiddleware.RequireAuth())
	agent.Use(authMiddleware.RequireRole(auth.RoleAgent))
	agent.Use(agentLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	{
		agent.POST("/node/status", nodeStatusHandler.Report)
	}

	// everything else is operator-only.
	operator := r.Group("/")
	operator.Use(authMiddleware.RequireAuth())
	operator.Use(authMiddleware.RequireRole(auth.RoleOperator))
	{
		operator.POST("/jobs", jobsHandler.Create)
		operator.GET("/jobs", jobsHandler.List)
		operator.GET("/jobs/statistics", jobsHandler.Statistics)
		operator.GET("/jobs/:id", jobsHandler.Get)
		operator.GET("/jobs/:id/log", jobsHandler.Log)
		operator.POST("/jobs/:id/cancel", jobsHandler.Cancel)
		operator.POST("/jobs/:id/retry", jobsHandler.Retry)

		operator.POST("/specifications", specsHandler.Create)
		operator.GET("/specifications", specsHandler.List)
		operator.GET("/specifications/:name", specsHandler.Get)
		operator.PUT("/specifications/:name", specsHandler.Update)
		operator.DELETE("/specifications/:name", specsHandler.Delete)

		operator.POST("/queues", queuesHandler.Create)
		operator.GET("/queues", queuesHandler.List)
		operator.GET("/queues/:name", queuesHandler.Get)
		operator.PUT("/queues/:name/state", queuesHandler.SetState)
		operator.PUT("/queues/:name/default", queuesHandler.SetDefault)
		operator.DELETE("/queues/:name", queuesHandler.Delete)

		operator.POST("/workers", workersHandler.Create)
		operator.GET("/workers", workersHandler.List)
		operator.GET("/workers/:name", workersHandler.Get)
		operator.DELETE("/workers/:name", workersHandler.Delete)
		operator.POST("/workers/:name/pause", workersHandler.Pause)
		operator.POST("/workers/:name/resume", workersHandler.Resume)
		operator.POST("/workers/:name/stop", workersHandler.Stop)
		operator.POST("/workers/:name/queues", workersHandler.AssignQueue)
		operator.DELETE("/workers/:name/queues/:queue", workersHandler.UnassignQueue)
	}

	return r
}

var errNotReconciled = &readyError{"dispatch engine has not completed startup reconciliation"}

type readyError struct{ msg string }

func (e *readyError) Error() string { return e.msg }

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/dispatch/internal/auth"
	"github.com/geocoder89/dispatch/internal/broker"
	"github.com/geocoder89/dispatch/internal/config"
	"github.com/geocoder89/dispatch/internal/db"
	httpapi "github.com/geocoder89/dispatch/internal/http"
	"github.com/geocoder89/dispatch/internal/jobservice"
	"github.com/geocoder89/dispatch/internal/logingest"
	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/geocoder89/dispatch/internal/queueengine"
	"github.com/geocoder89/dispatch/internal/repo/postgres"
	"github.com/geocoder89/dispatch/internal/workermanager"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	handler := observability.NewTraceHandler(
		newJSONHandler(cfg.Env),
	)
	log := slog.New(handler)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "dispatch-dispatcher", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Warn("tracer.init_failed", "err", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db.connect_failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := ensureStateDirs(cfg); err != nil {
		log.Error("state_dirs.create_failed", "err", err)
		os.Exit(1)
	}

	if err := db.EnsureSystemWorker(ctx, pool, cfg.DefaultMaxJobs); err != nil {
		log.Error("system_worker.seed_failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	brokerClient := broker.New(broker.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer brokerClient.Close()

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	queuesRepo := postgres.NewQueuesRepo(pool, prom)
	workersRepo := postgres.NewWorkersRepo(pool, prom)
	assignmentsRepo := postgres.NewQueueWorkerAssignmentsRepo(pool, prom)
	specsRepo := postgres.NewSpecificationsRepo(pool, prom)

	engine := queueengine.New(
		queueengine.Config{
			DispatchInterval: cfg.DispatchLoopInterval,
			AgentCallTimeout: cfg.AgentCallTimeout,
		},
		jobsRepo,
		workersRepo,
		queuesRepo,
		assignmentsRepo,
		specsRepo,
		queueengine.NewHTTPAgentClient(cfg.AgentCallTimeout),
		prom,
	)

	if err := engine.Reconcile(ctx); err != nil {
		log.Error("engine.reconcile_failed", "err", err)
		os.Exit(1)
	}
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("engine.run_stopped", "err", err)
		}
	}()

	jobsSvc := jobservice.New(jobsRepo, engine, cfg.JobsLogDir())

	consumer := logingest.NewConsumer(brokerClient, jobsSvc, cfg.JobsLogDir(), cfg.WorkersLogDir())
	go consumer.Run(ctx)

	workerMgr := workermanager.New(workermanager.Config{
		BaseDir:          cfg.DispatchHome,
		AppName:          "dispatch",
		AgentDefaultPort: cfg.WorkerAgentPort,
	}, workersRepo)

	healthMonitor := workermanager.NewHealthMonitor(workersRepo, workerMgr, cfg.HealthMonitorInterval)
	go healthMonitor.Run(ctx)

	router := httpapi.NewRouter(pool, prom, cfg, engine, brokerClient, workerMgr, consumer)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		log.Info("dispatcher.listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("dispatcher.listen_failed", "err", err)
			os.Exit(1)
		}
	}()

	printOperatorToken(cfg, log)

	<-ctx.Done()
	log.Info("dispatcher.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("dispatcher.shutdown_failed", "err", err)
	}
}

// printOperatorToken mints a long-lived operator bearer token on first
// boot so there is always a way in; there is no signup/login flow.
func printOperatorToken(cfg config.Config, log *slog.Logger) {
	jwtManager := auth.NewManager(cfg.ServiceToken, 365*24*time.Hour)
	token, err := jwtManager.GenerateServiceToken(auth.RoleOperator, "operator")
	if err != nil {
		log.Warn("operator_token.mint_failed", "err", err)
		return
	}
	log.Info("operator_token.minted", "token", token)
}

func ensureStateDirs(cfg config.Config) error {
	for _, dir := range []string{cfg.JobsLogDir(), cfg.WorkersLogDir(), cfg.QueuesLogDir(), cfg.SSHKeysDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func newJSONHandler(env string) slog.Handler {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}

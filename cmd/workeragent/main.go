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

	"github.com/geocoder89/dispatch/internal/broker"
	"github.com/geocoder89/dispatch/internal/config"
	"github.com/geocoder89/dispatch/internal/workeragent"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Env == "dev" {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	brokerClient := broker.New(broker.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer brokerClient.Close()

	callbackURL := os.Getenv("DISPATCHER_NODE_STATUS_URL")
	if callbackURL == "" {
		callbackURL = fmt.Sprintf("http://127.0.0.1:%d/api/node/status", cfg.Port)
	}
	callback := workeragent.NewHTTPCallback(callbackURL, cfg.AgentCallTimeout)

	executor := workeragent.NewExecutor(cfg.DefaultMaxJobs, brokerClient, callback)
	router := workeragent.NewRouter(executor)

	srv := &http.Server{
		Addr:    cfg.WorkerAgentHealthAddr,
		Handler: router,
	}

	go func() {
		log.Info("workeragent.listening", "addr", srv.Addr, "max_jobs", cfg.DefaultMaxJobs)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("workeragent.listen_failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("workeragent.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("workeragent.shutdown_failed", "err", err)
	}
}

package db

import (
	"context"
	"errors"

	"github.com/geocoder89/dispatch/internal/domain/worker"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSystemWorker seeds the undeletable local "System" worker on first
// boot. It always runs as a local worker with no SSH credentials. Like any
// other worker it is dispatched to only for queues it is assigned to.
func EnsureSystemWorker(ctx context.Context, pool *pgxpool.Pool, maxJobs int) error {
	var dummy string

	err := pool.QueryRow(ctx, `SELECT name FROM workers WHERE name = $1`, worker.SystemWorkerName).Scan(&dummy)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	w := worker.New(worker.CreateRequest{
		Name:       worker.SystemWorkerName,
		WorkerType: worker.TypeLocal,
		MaxJobs:    maxJobs,
	})

	_, err = pool.Exec(ctx, `
		INSERT INTO workers(name, worker_type, max_jobs, status, state)
		VALUES ($1,$2,$3,$4,$5)
	`, w.Name, string(w.WorkerType), w.MaxJobs, string(w.Status), string(w.State))

	return err
}

package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAssignmentExists = errors.New("queue is already assigned to worker")

// QueueWorkerAssignmentsRepo stores the many-to-many between queues and
// workers: which workers a queue's dispatch loop may pick from.
type QueueWorkerAssignmentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (r *QueueWorkerAssignmentsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewQueueWorkerAssignmentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *QueueWorkerAssignmentsRepo {
	return &QueueWorkerAssignmentsRepo{pool: pool, prom: prom}
}

func (r *QueueWorkerAssignmentsRepo) Assign(ctx context.Context, queueName, workerName string) error {
	return r.observe("queue_worker_assignments.assign", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO queue_worker_assignments(queue_name, worker_name) VALUES ($1,$2)
		`, queueName, workerName)
		if isUniqueViolation(err) {
			return ErrAssignmentExists
		}
		return err
	})
}

func (r *QueueWorkerAssignmentsRepo) Unassign(ctx context.Context, queueName, workerName string) error {
	return r.observe("queue_worker_assignments.unassign", func() error {
		_, err := r.pool.Exec(ctx, `
			DELETE FROM queue_worker_assignments WHERE queue_name=$1 AND worker_name=$2
		`, queueName, workerName)
		return err
	})
}

// WorkersForQueue lists worker names assigned to serve queueName. The
// dispatch loop intersects this with the eligible (started+online) worker
// set on every tick.
func (r *QueueWorkerAssignmentsRepo) WorkersForQueue(ctx context.Context, queueName string) ([]string, error) {
	var names []string
	err := r.observe("queue_worker_assignments.workers_for_queue", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT worker_name FROM queue_worker_assignments WHERE queue_name=$1 ORDER BY worker_name
		`, queueName)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	return names, err
}

func (r *QueueWorkerAssignmentsRepo) QueuesForWorker(ctx context.Context, workerName string) ([]string, error) {
	var names []string
	err := r.observe("queue_worker_assignments.queues_for_worker", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT queue_name FROM queue_worker_assignments WHERE worker_name=$1 ORDER BY queue_name
		`, workerName)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	return names, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

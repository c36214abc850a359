package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/dispatch/internal/domain/queuespec"
	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type QueuesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (r *QueuesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewQueuesRepo(pool *pgxpool.Pool, prom *observability.Prom) *QueuesRepo {
	return &QueuesRepo{pool: pool, prom: prom}
}

const queueColumns = `name, state, priority, strategy, time_limit_seconds, is_default, log_file_path`

func scanQueue(row pgx.Row) (queuespec.Queue, error) {
	var q queuespec.Queue
	var state, priority, strategy string
	err := row.Scan(&q.Name, &state, &priority, &strategy, &q.TimeLimitSeconds, &q.IsDefault, &q.LogFilePath)
	if err != nil {
		return queuespec.Queue{}, err
	}
	q.State = queuespec.State(state)
	q.Priority = queuespec.Priority(priority)
	q.Strategy = queuespec.Strategy(strategy)
	return q, nil
}

func (r *QueuesRepo) Create(ctx context.Context, req queuespec.CreateRequest) (queuespec.Queue, error) {
	q := queuespec.New(req)
	err := r.observe("queues.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO queues(name, state, priority, strategy, time_limit_seconds, is_default)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, q.Name, string(q.State), string(q.Priority), string(q.Strategy), q.TimeLimitSeconds, q.IsDefault)
		return err
	})
	if err != nil {
		return queuespec.Queue{}, err
	}
	return q, nil
}

// GetByName looks the queue up case-insensitively (B2) and returns the
// row as stored, so the caller always gets back the canonical name/casing
// regardless of how the lookup name was cased.
func (r *QueuesRepo) GetByName(ctx context.Context, name string) (queuespec.Queue, error) {
	var q queuespec.Queue
	var err error
	err = r.observe("queues.get_by_name", func() error {
		q, err = scanQueue(r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE lower(name) = lower($1)`, name))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return queuespec.Queue{}, queuespec.ErrNotFound
		}
		return queuespec.Queue{}, err
	}
	return q, nil
}

func (r *QueuesRepo) List(ctx context.Context) ([]queuespec.Queue, error) {
	var out []queuespec.Queue
	err := r.observe("queues.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM queues ORDER BY name ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			q, err := scanQueue(rows)
			if err != nil {
				return err
			}
			out = append(out, q)
		}
		return rows.Err()
	})
	return out, err
}

func (r *QueuesRepo) SetState(ctx context.Context, name string, state queuespec.State) error {
	return r.observe("queues.set_state", func() error {
		tag, err := r.pool.Exec(ctx, `UPDATE queues SET state=$2 WHERE name=$1`, name, string(state))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return queuespec.ErrNotFound
		}
		return nil
	})
}

// SetDefault makes name the sole default queue: clearing every other row's
// is_default and setting it on name, inside one transaction, so P8 (at
// most one default at any time) never observes two rows true at once.
func (r *QueuesRepo) SetDefault(ctx context.Context, name string) error {
	return r.observe("queues.set_default", func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `UPDATE queues SET is_default=false WHERE is_default`); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE queues SET is_default=true WHERE name=$1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return queuespec.ErrNotFound
		}
		return tx.Commit(ctx)
	})
}

func (r *QueuesRepo) SetLogFilePath(ctx context.Context, name, path string) error {
	return r.observe("queues.set_log_file_path", func() error {
		_, err := r.pool.Exec(ctx, `UPDATE queues SET log_file_path=$2 WHERE name=$1`, name, path)
		return err
	})
}

func (r *QueuesRepo) Delete(ctx context.Context, name string) error {
	return r.observe("queues.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM queues WHERE name=$1 AND NOT is_default`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return queuespec.ErrNotFound
		}
		return nil
	})
}

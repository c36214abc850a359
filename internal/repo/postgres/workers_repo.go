package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/worker"
	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WorkersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (r *WorkersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewWorkersRepo(pool *pgxpool.Pool, prom *observability.Prom) *WorkersRepo {
	return &WorkersRepo{pool: pool, prom: prom}
}

const workerColumns = `name, worker_type, hostname, ip_address, port, ssh_user, auth_method,
	ssh_private_key, password, provision, max_jobs, status, state, last_seen,
	error_message, log_file_path`

func scanWorker(row pgx.Row) (worker.Worker, error) {
	var w worker.Worker
	var workerType, authMethod, status, state string

	err := row.Scan(
		&w.Name, &workerType, &w.Hostname, &w.IPAddress, &w.Port, &w.SSHUser, &authMethod,
		&w.SSHPrivateKey, &w.Password, &w.Provision, &w.MaxJobs, &status, &state, &w.LastSeen,
		&w.ErrorMessage, &w.LogFilePath,
	)
	if err != nil {
		return worker.Worker{}, err
	}

	w.WorkerType = worker.Type(workerType)
	w.AuthMethod = worker.AuthMethod(authMethod)
	w.Status = worker.Status(status)
	w.State = worker.State(state)
	return w, nil
}

func (r *WorkersRepo) Create(ctx context.Context, req worker.CreateRequest) (worker.Worker, error) {
	w := worker.New(req)
	err := r.observe("workers.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO workers(
				name, worker_type, hostname, ip_address, port, ssh_user, auth_method,
				ssh_private_key, password, provision, max_jobs, status, state
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, w.Name, string(w.WorkerType), w.Hostname, w.IPAddress, w.Port, w.SSHUser, string(w.AuthMethod),
			w.SSHPrivateKey, w.Password, w.Provision, w.MaxJobs, string(w.Status), string(w.State))
		return err
	})
	if err != nil {
		return worker.Worker{}, err
	}
	return w, nil
}

func (r *WorkersRepo) GetByName(ctx context.Context, name string) (worker.Worker, error) {
	var w worker.Worker
	var err error
	err = r.observe("workers.get_by_name", func() error {
		w, err = scanWorker(r.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE name = $1`, name))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return worker.Worker{}, worker.ErrNotFound
		}
		return worker.Worker{}, err
	}
	return w, nil
}

func (r *WorkersRepo) List(ctx context.Context) ([]worker.Worker, error) {
	var out []worker.Worker
	err := r.observe("workers.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY name ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			w, err := scanWorker(rows)
			if err != nil {
				return err
			}
			out = append(out, w)
		}
		return rows.Err()
	})
	return out, err
}

// ListEligibleWithLoad returns workers the dispatch loop may select from: started
// and online (worker.IsEligible), with their current running-job count so
// strategies can compute load without a second query.
func (r *WorkersRepo) ListEligibleWithLoad(ctx context.Context) ([]worker.Worker, map[string]int, error) {
	var workers []worker.Worker
	load := make(map[string]int)

	err := r.observe("workers.list_eligible", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers WHERE state='started' AND status='online'`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			w, err := scanWorker(rows)
			if err != nil {
				return err
			}
			workers = append(workers, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	err = r.observe("workers.list_eligible.load", func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT assigned_worker_name, COUNT(*) FROM jobs
			WHERE status = 'running' AND assigned_worker_name <> ''
			GROUP BY assigned_worker_name
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			var count int
			if err := rows.Scan(&name, &count); err != nil {
				return err
			}
			load[name] = count
		}
		return rows.Err()
	})

	return workers, load, err
}

func (r *WorkersRepo) SetStatus(ctx context.Context, name string, status worker.Status, errMsg string) error {
	return r.observe("workers.set_status", func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE workers SET status=$2, error_message=$3, last_seen=NOW() WHERE name=$1
		`, name, string(status), errMsg)
		return err
	})
}

func (r *WorkersRepo) SetState(ctx context.Context, name string, state worker.State) error {
	return r.observe("workers.set_state", func() error {
		tag, err := r.pool.Exec(ctx, `UPDATE workers SET state=$2 WHERE name=$1`, name, string(state))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return worker.ErrNotFound
		}
		return nil
	})
}

func (r *WorkersRepo) Touch(ctx context.Context, name string, seen time.Time) error {
	return r.observe("workers.touch", func() error {
		_, err := r.pool.Exec(ctx, `UPDATE workers SET last_seen=$2 WHERE name=$1`, name, seen)
		return err
	})
}

func (r *WorkersRepo) UpdateMaxJobs(ctx context.Context, name string, maxJobs int) error {
	return r.observe("workers.update_max_jobs", func() error {
		tag, err := r.pool.Exec(ctx, `UPDATE workers SET max_jobs=$2 WHERE name=$1`, name, maxJobs)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return worker.ErrNotFound
		}
		return nil
	})
}

func (r *WorkersRepo) SetLogFilePath(ctx context.Context, name, path string) error {
	return r.observe("workers.set_log_file_path", func() error {
		_, err := r.pool.Exec(ctx, `UPDATE workers SET log_file_path=$2 WHERE name=$1`, name, path)
		return err
	})
}

func (r *WorkersRepo) Delete(ctx context.Context, name string) error {
	if name == worker.SystemWorkerName {
		return worker.ErrSystemUndeletable
	}
	return r.observe("workers.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM workers WHERE name=$1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return worker.ErrNotFound
		}
		return nil
	})
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/dispatch/internal/domain/job"
	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/geocoder89/dispatch/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFailed = errors.New("job is not failed")

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (r *JobsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

const jobColumns = `id, name, status, progress, parameters, result, error_message,
	log_file_path, worker_name, queue_name, assigned_worker_name, retries, max_retries,
	created_at, started_at, completed_at`

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	var parametersRaw []byte

	err := row.Scan(
		&j.ID, &j.Name, &status, &j.Progress, &parametersRaw, &j.Result, &j.ErrorMessage,
		&j.LogFilePath, &j.WorkerName, &j.QueueName, &j.AssignedWorkerName, &j.Retries, &j.MaxRetries,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return job.Job{}, err
	}

	j.Status = job.Status(status)
	if len(parametersRaw) > 0 {
		if err := json.Unmarshal(parametersRaw, &j.Parameters); err != nil {
			return job.Job{}, fmt.Errorf("decode job parameters: %w", err)
		}
	}

	return j, nil
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	j := job.New(req)
	op := "jobs.create"

	parametersRaw, err := json.Marshal(j.Parameters)
	if err != nil {
		return job.Job{}, fmt.Errorf("encode job parameters: %w", err)
	}

	err = r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO jobs(
				name, status, progress, parameters, queue_name, max_retries, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, j.Name, string(j.Status), j.Progress, parametersRaw, j.QueueName, j.MaxRetries, j.CreatedAt,
		).Scan(&j.ID)
	})

	if err != nil {
		return job.Job{}, err
	}

	return j, nil
}

func (r *JobsRepo) GetByID(ctx context.Context, id int64) (job.Job, error) {
	var j job.Job
	var err error
	op := "jobs.get_by_id"

	err = r.observe(op, func() error {
		j, err = scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Job{}, job.ErrJobNotFound
		}
		return job.Job{}, err
	}

	return j, nil
}

// Transition moves a job to a new status, stamping started_at/completed_at
// as appropriate. The write is unconditional: it does not consult
// job.CanTransition, and no caller in this module checks it either.
func (r *JobsRepo) Transition(ctx context.Context, id int64, to job.Status) error {
	op := "jobs.transition"

	return r.observe(op, func() error {
		var err error
		switch {
		case to == job.StatusRunning:
			_, err = r.pool.Exec(ctx, `
				UPDATE jobs SET status=$2, started_at=NOW() WHERE id=$1
			`, id, string(to))
		case to.IsTerminal():
			_, err = r.pool.Exec(ctx, `
				UPDATE jobs SET status=$2, completed_at=NOW() WHERE id=$1
			`, id, string(to))
		default:
			_, err = r.pool.Exec(ctx, `UPDATE jobs SET status=$2 WHERE id=$1`, id, string(to))
		}
		return err
	})
}

func (r *JobsRepo) UpdateProgress(ctx context.Context, id int64, progress int) error {
	op := "jobs.update_progress"
	return r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `UPDATE jobs SET progress=$2 WHERE id=$1`, id, job.ClampProgress(progress))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return job.ErrJobNotFound
		}
		return nil
	})
}

func (r *JobsRepo) UpdateResult(ctx context.Context, id int64, result json.RawMessage) error {
	op := "jobs.update_result"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `UPDATE jobs SET result=$2 WHERE id=$1`, id, []byte(result))
		return err
	})
}

// UpdateError sets error_message only if it is not already set, matching
// the original dispatcher's "first error wins" behaviour for a job whose
// output produces more than one ERROR= line.
func (r *JobsRepo) UpdateError(ctx context.Context, id int64, message string) error {
	op := "jobs.update_error"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs SET error_message=$2
			WHERE id=$1 AND (error_message IS NULL OR error_message = '')
		`, id, message)
		return err
	})
}

// AssignWorker stamps both assigned_worker_name and worker_name, matching
// step 8 of the dispatch algorithm. Neither field implies a status change;
// the worker agent callback or log parser own that transition.
func (r *JobsRepo) AssignWorker(ctx context.Context, id int64, workerName string) error {
	op := "jobs.assign_worker"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs SET assigned_worker_name=$2, worker_name=$2 WHERE id=$1
		`, id, workerName)
		return err
	})
}

func (r *JobsRepo) SetLogFilePath(ctx context.Context, id int64, path string) error {
	op := "jobs.set_log_file_path"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `UPDATE jobs SET log_file_path=$2 WHERE id=$1`, id, path)
		return err
	})
}

// Requeue returns a dispatched-but-not-yet-running job to Pending with no
// worker assignment, for a transient dispatch failure (worker unreachable).
func (r *JobsRepo) Requeue(ctx context.Context, id int64) error {
	op := "jobs.requeue"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs SET status='pending', assigned_worker_name='' WHERE id=$1
		`, id)
		return err
	})
}

// Retry clones a Failed job into a new Pending job with the same name and
// parameters, and increments retries on the original. Mirrors the original
// dispatcher's retry-is-a-new-row semantics exactly.
func (r *JobsRepo) Retry(ctx context.Context, id int64) (job.Job, error) {
	var newJob job.Job

	err := r.observe("jobs.retry", func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		original, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return job.ErrJobNotFound
			}
			return err
		}
		if original.Status != job.StatusFailed {
			return ErrJobNotFailed
		}

		parametersRaw, err := json.Marshal(original.Parameters)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		newJob = job.Job{
			Name:       original.Name,
			Status:     job.StatusPending,
			Parameters: original.Parameters,
			QueueName:  original.QueueName,
			MaxRetries: original.MaxRetries,
			CreatedAt:  now,
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO jobs(name, status, progress, parameters, queue_name, max_retries, created_at)
			VALUES ($1,$2,0,$3,$4,$5,$6)
			RETURNING id
		`, newJob.Name, string(newJob.Status), parametersRaw, newJob.QueueName, newJob.MaxRetries, newJob.CreatedAt,
		).Scan(&newJob.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE jobs SET retries = retries + 1 WHERE id = $1`, id); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return job.Job{}, err
	}
	return newJob, nil
}

func (r *JobsRepo) Cancel(ctx context.Context, id int64) error {
	op := "jobs.cancel"
	return r.observe(op, func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs SET status='cancelled', completed_at=NOW()
			WHERE id = $1 AND status IN ('pending','running')
		`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return job.ErrJobNotFound
		}
		return nil
	})
}

// ListCursor paginates jobs newest-first by (created_at, id), optionally
// filtered by status and/or queue.
func (r *JobsRepo) ListCursor(
	ctx context.Context,
	status *string,
	queueName *string,
	limit int,
	afterCreatedAt time.Time,
	afterID int64,
) (items []job.Job, nextCursor *string, hasMore bool, err error) {
	op := "jobs.list_cursor"

	base := `SELECT ` + jobColumns + ` FROM jobs`

	var (
		conds   []string
		args    []any
		argsPos = 1
	)

	if status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argsPos))
		args = append(args, *status)
		argsPos++
	}
	if queueName != nil {
		conds = append(conds, fmt.Sprintf("queue_name = $%d", argsPos))
		args = append(args, *queueName)
		argsPos++
	}

	if !afterCreatedAt.IsZero() {
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argsPos, argsPos+1))
		args = append(args, afterCreatedAt, afterID)
		argsPos += 2
	}

	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	limitPlusOne := limit + 1
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argsPos)
	args = append(args, limitPlusOne)

	var rows pgx.Rows
	err = r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]job.Job, 0, limit)
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, j)
	}
	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]

		cur, encErr := utils.EncodeJobCursor(last.CreatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}

// ListActive returns every non-terminal job ordered by created_at ascending,
// for startup reconciliation of the in-memory queue FIFOs.
func (r *JobsRepo) ListActive(ctx context.Context) ([]job.Job, error) {
	var out []job.Job
	op := "jobs.list_active"

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE status IN ('pending','running')
			ORDER BY created_at ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			j, scanErr := scanJob(rows)
			if scanErr != nil {
				return scanErr
			}
			out = append(out, j)
		}
		return rows.Err()
	})

	return out, err
}

// ResetInterrupted reverts a Running job to Pending with started_at and
// assigned_worker_name cleared. Used only by startup reconciliation to
// repair jobs that were mid-flight when the dispatcher last crashed; it
// bypasses the normal transition table on purpose since Running->Pending
// is not a dispatch-time transition.
func (r *JobsRepo) ResetInterrupted(ctx context.Context, id int64) error {
	op := "jobs.reset_interrupted"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			UPDATE jobs SET status='pending', started_at=NULL, assigned_worker_name=''
			WHERE id=$1 AND status='running'
		`, id)
		return err
	})
}

func (r *JobsRepo) Statistics(ctx context.Context) (map[job.Status]int64, error) {
	op := "jobs.statistics"
	out := make(map[job.Status]int64, 5)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var status string
			var count int64
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			out[job.Status(status)] = count
		}
		return rows.Err()
	})

	return out, err
}

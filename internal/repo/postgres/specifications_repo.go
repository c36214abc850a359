package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/dispatch/internal/domain/specification"
	"github.com/geocoder89/dispatch/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SpecificationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (r *SpecificationsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewSpecificationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SpecificationsRepo {
	return &SpecificationsRepo{pool: pool, prom: prom}
}

const specColumns = `id, name, description, command, is_active, created_at, updated_at`

func scanSpecification(row pgx.Row) (specification.Specification, error) {
	var s specification.Specification
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Command, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *SpecificationsRepo) Create(ctx context.Context, req specification.CreateRequest) (specification.Specification, error) {
	s := specification.New(req)
	err := r.observe("specifications.create", func() error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO specifications(name, description, command, is_active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, s.Name, s.Description, s.Command, s.IsActive, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
	})
	if err != nil {
		return specification.Specification{}, err
	}
	return s, nil
}

func (r *SpecificationsRepo) GetByName(ctx context.Context, name string) (specification.Specification, error) {
	var s specification.Specification
	var err error

	err = r.observe("specifications.get_by_name", func() error {
		s, err = scanSpecification(r.pool.QueryRow(ctx, `SELECT `+specColumns+` FROM specifications WHERE name = $1`, name))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return specification.Specification{}, specification.ErrNotFound
		}
		return specification.Specification{}, err
	}
	return s, nil
}

func (r *SpecificationsRepo) List(ctx context.Context, activeOnly bool) ([]specification.Specification, error) {
	q := `SELECT ` + specColumns + ` FROM specifications`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name ASC`

	var out []specification.Specification
	err := r.observe("specifications.list", func() error {
		rows, err := r.pool.Query(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSpecification(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	return out, err
}

func (r *SpecificationsRepo) Update(ctx context.Context, name, description, command string, isActive bool) error {
	return r.observe("specifications.update", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE specifications SET description=$2, command=$3, is_active=$4, updated_at=NOW()
			WHERE name=$1
		`, name, description, command, isActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return specification.ErrNotFound
		}
		return nil
	})
}

// Delete soft-deletes by flipping is_active off; specifications referenced
// by historical jobs are never hard-deleted.
func (r *SpecificationsRepo) Delete(ctx context.Context, name string) error {
	return r.observe("specifications.delete", func() error {
		tag, err := r.pool.Exec(ctx, `UPDATE specifications SET is_active=false, updated_at=NOW() WHERE name=$1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return specification.ErrNotFound
		}
		return nil
	})
}

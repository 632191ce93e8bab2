// Package postgres persists job records in a renders table so the API
// and the reconciliation worker can share one registry across
// processes.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	platerr "clipforge/internal/pkg/errors"
	"clipforge/internal/render"
)

const schema = `
CREATE TABLE IF NOT EXISTS renders (
    id              TEXT PRIMARY KEY,
    state           TEXT NOT NULL,
    external_handle TEXT NOT NULL DEFAULT '',
    progress        INT  NOT NULL DEFAULT 0,
    result_location TEXT NOT NULL DEFAULT '',
    failure_reason  TEXT NOT NULL DEFAULT '',
    params_json     TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    completed_at    TIMESTAMPTZ
)`

type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// EnsureSchema creates the renders table when it does not exist yet.
func (r *Registry) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Registry) Create(ctx context.Context, job *render.Job) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO renders (id, state, external_handle, progress, result_location, failure_reason, params_json, created_at, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		job.ID, string(job.State), job.ExternalHandle, job.Progress,
		job.ResultLocation, job.FailureReason, string(job.Params),
		job.CreatedAt, job.CompletedAt,
	)
	if isUniqueViolation(err) {
		return platerr.AlreadyExists("render job", job.ID)
	}
	return err
}

func (r *Registry) Get(ctx context.Context, id string) (*render.Job, error) {
	var (
		job         render.Job
		state       string
		paramsJSON  string
		completedAt *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, state, external_handle, progress, result_location, failure_reason, params_json, created_at, completed_at
		 FROM renders WHERE id=$1`, id,
	).Scan(&job.ID, &state, &job.ExternalHandle, &job.Progress,
		&job.ResultLocation, &job.FailureReason, &paramsJSON,
		&job.CreatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, render.NotFoundErr(id)
		}
		return nil, err
	}

	job.State = render.State(state)
	job.Params = []byte(paramsJSON)
	job.CompletedAt = completedAt
	return &job, nil
}

// Update is a compare-and-set: terminal rows are never overwritten,
// so reconcilers in the API and the worker process cannot undo each
// other's outcome.
func (r *Registry) Update(ctx context.Context, job *render.Job) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE renders
		 SET state=$2, progress=$3, result_location=$4, failure_reason=$5, completed_at=$6
		 WHERE id=$1 AND state NOT IN ($7, $8)`,
		job.ID, string(job.State), job.Progress,
		job.ResultLocation, job.FailureReason, job.CompletedAt,
		string(render.StateCompleted), string(render.StateFailed),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var state string
		err := r.pool.QueryRow(ctx, `SELECT state FROM renders WHERE id=$1`, job.ID).Scan(&state)
		if errors.Is(err, pgx.ErrNoRows) {
			return render.NotFoundErr(job.ID)
		}
		if err != nil {
			return err
		}
		return render.StaleErr(job.ID)
	}
	return nil
}

// 23505 = unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

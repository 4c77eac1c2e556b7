package jobs

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id, name, payload, status, attempts, max_attempts, run_at, locked_until, last_error, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, j *Job) error {
	const q = `
	INSERT INTO jobs (id, name, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
	VALUES (:id, :name, :payload, :status, :attempts, :max_attempts, :run_at, :created_at, :updated_at)
	`
	_, err := s.db.NamedExecContext(ctx, q, j)
	return err
}

func (s *PostgresStore) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error) {
	const q = `
	UPDATE jobs
	SET status = 'running', attempts = attempts + 1, locked_until = $2, updated_at = $1
	WHERE id IN (
		SELECT id FROM jobs
		WHERE (status = 'pending' AND run_at <= $1)
		   OR (status = 'running' AND locked_until < $1)
		ORDER BY run_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	)
	RETURNING ` + jobColumns

	var claimed []Job
	if err := s.db.SelectContext(ctx, &claimed, q, now, now.Add(lease), limit); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE jobs SET status = 'done', locked_until = NULL, updated_at = $2 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id, now)
	return err
}

func (s *PostgresStore) Retry(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	const q = `
	UPDATE jobs
	SET status = 'pending', run_at = $2, last_error = $3, locked_until = NULL, updated_at = NOW()
	WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, q, id, runAt, errMsg)
	return err
}

func (s *PostgresStore) Fail(ctx context.Context, id string, now time.Time, errMsg string) error {
	const q = `
	UPDATE jobs
	SET status = 'failed', last_error = $3, locked_until = NULL, updated_at = $2
	WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, q, id, now, errMsg)
	return err
}

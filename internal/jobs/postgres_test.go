package jobs

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

var claimQuery = regexp.QuoteMeta(`UPDATE jobs SET status = 'running', attempts = attempts + 1, locked_until = $2, updated_at = $1`) +
	`.*` + regexp.QuoteMeta(`WHERE (status = 'pending' AND run_at <= $1) OR (status = 'running' AND locked_until < $1) ORDER BY run_at LIMIT $3 FOR UPDATE SKIP LOCKED`) +
	`.*` + regexp.QuoteMeta(`RETURNING `+jobColumns)

func TestPostgresStore_Claim(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	lease := 5 * time.Minute

	rows := sqlmock.NewRows([]string{
		"id", "name", "payload", "status", "attempts", "max_attempts",
		"run_at", "locked_until", "last_error", "created_at", "updated_at",
	}).AddRow(
		"01HZX", "connection.requested", []byte(`{"connection_id":"c1"}`), "running", 1, 5,
		now.Add(-time.Minute), now.Add(lease), nil, now.Add(-time.Minute), now,
	)
	mock.ExpectQuery(claimQuery).WithArgs(now, now.Add(lease), 10).WillReturnRows(rows)

	claimed, err := store.Claim(context.Background(), now, lease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	j := claimed[0]
	assert.Equal(t, "01HZX", j.ID)
	assert.Equal(t, StatusRunning, j.Status)
	assert.Equal(t, 1, j.Attempts)
	assert.True(t, j.LockedUntil.Valid)
	assert.Equal(t, now.Add(lease), j.LockedUntil.Time)
	assert.False(t, j.LastError.Valid)

	var p struct {
		ConnectionID string `json:"connection_id"`
	}
	require.NoError(t, j.Decode(&p))
	assert.Equal(t, "c1", p.ConnectionID)
}

func TestPostgresStore_ClaimError(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(claimQuery).WithArgs(now, now.Add(time.Minute), 1).WillReturnError(errors.New("conn reset"))

	_, err := store.Claim(context.Background(), now, time.Minute, 1)
	assert.ErrorContains(t, err, "conn reset")
}

func TestPostgresStore_Insert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	j := &Job{
		ID: "01HZX", Name: "story.expire", Status: StatusPending,
		MaxAttempts: 5, RunAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO jobs (id, name, payload, status, attempts, max_attempts, run_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)).
		WithArgs("01HZX", "story.expire", "{}", "pending", 0, 5, now.Add(time.Hour), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Insert(context.Background(), j))
}

func TestPostgresStore_Transitions(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE jobs SET status = 'done', locked_until = NULL, updated_at = $2 WHERE id = $1`)).
		WithArgs("j1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET status = 'pending', run_at = $2, last_error = $3`)).
		WithArgs("j2", now.Add(Backoff(1)), "smtp down").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET status = 'failed', last_error = $3, locked_until = NULL, updated_at = $2`)).
		WithArgs("j3", now, "bad payload").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Complete(ctx, "j1", now))
	require.NoError(t, store.Retry(ctx, "j2", now.Add(Backoff(1)), "smtp down"))
	require.NoError(t, store.Fail(ctx, "j3", now, "bad payload"))
}

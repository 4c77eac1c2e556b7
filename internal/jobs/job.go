// Package jobs is a durable queue of named, independently retried steps.
package jobs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

const (
	DefaultMaxAttempts = 5
	DefaultLease       = 5 * time.Minute

	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

type Job struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	Payload     Payload        `db:"payload"`
	Status      Status         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	RunAt       time.Time      `db:"run_at"`
	LockedUntil sql.NullTime   `db:"locked_until"`
	LastError   sql.NullString `db:"last_error"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Payload is the JSON body of a job. It is sent to the driver as text so
// it can be stored in a JSONB column.
type Payload []byte

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Store persists jobs. Claim must hand each due job to exactly one caller.
type Store interface {
	Insert(ctx context.Context, j *Job) error
	// Claim marks up to limit due jobs running until now+lease and returns them.
	// A running job whose lease has passed is due again.
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error)
	Complete(ctx context.Context, id string, now time.Time) error
	Retry(ctx context.Context, id string, runAt time.Time, errMsg string) error
	Fail(ctx context.Context, id string, now time.Time, errMsg string) error
}

// Backoff is the delay before retry number attempt (1-based): 30s doubling,
// capped at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates a new job id (ULID).
func NewID(now time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Enqueuer schedules a named step. Callers never wait for the step to run.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...Option) (string, error)
}

type enqueueOptions struct {
	runAt       time.Time
	delay       time.Duration
	maxAttempts int
}

type Option func(*enqueueOptions)

// Delay runs the job no earlier than d from now.
func Delay(d time.Duration) Option {
	return func(o *enqueueOptions) { o.delay = d }
}

// At runs the job no earlier than t.
func At(t time.Time) Option {
	return func(o *enqueueOptions) { o.runAt = t }
}

func MaxAttempts(n int) Option {
	return func(o *enqueueOptions) { o.maxAttempts = n }
}

type Queue struct {
	store Store
	now   func() time.Time
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts ...Option) (string, error) {
	o := enqueueOptions{maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", name, err)
	}

	now := q.now().UTC()
	runAt := now.Add(o.delay)
	if !o.runAt.IsZero() {
		runAt = o.runAt.UTC()
	}

	j := &Job{
		ID:          NewID(now),
		Name:        name,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: o.maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.Insert(ctx, j); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", name, err)
	}
	return j.ID, nil
}

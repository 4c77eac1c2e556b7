package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T) (*Queue, *Worker, *MemoryStore, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	q := NewQueue(store)
	q.now = c.now
	w := NewWorker(store, time.Second, nil)
	w.now = c.now
	return q, w, store, c
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, Backoff(1))
	assert.Equal(t, time.Minute, Backoff(2))
	assert.Equal(t, 2*time.Minute, Backoff(3))
	assert.Equal(t, 4*time.Minute, Backoff(4))
	assert.Equal(t, time.Hour, Backoff(20))
}

func TestQueue_EnqueueDelay(t *testing.T) {
	q, w, store, c := newTestQueue(t)
	ctx := context.Background()

	ran := 0
	w.Handle("reminder", func(ctx context.Context, job *Job) error {
		var p struct{ ID string }
		require.NoError(t, job.Decode(&p))
		assert.Equal(t, "abc", p.ID)
		ran++
		return nil
	})

	_, err := q.Enqueue(ctx, "reminder", map[string]string{"ID": "abc"}, Delay(24*time.Hour))
	require.NoError(t, err)

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "delayed job is not due yet")

	c.advance(24 * time.Hour)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ran)
	assert.Equal(t, StatusDone, store.Jobs()[0].Status)
}

func TestWorker_RetriesWithBackoffThenFails(t *testing.T) {
	q, w, store, c := newTestQueue(t)
	ctx := context.Background()

	calls := 0
	w.Handle("flaky", func(context.Context, *Job) error {
		calls++
		return errors.New("smtp unavailable")
	})
	_, err := q.Enqueue(ctx, "flaky", struct{}{}, MaxAttempts(3))
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	job := store.Jobs()[0]
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, c.t.Add(30*time.Second), job.RunAt)
	assert.Equal(t, "smtp unavailable", job.LastError.String)

	c.advance(30 * time.Second)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(time.Minute), store.Jobs()[0].RunAt)

	c.advance(time.Minute)
	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, store.Jobs()[0].Status)
	assert.Equal(t, 3, calls)
}

func TestWorker_PermanentErrorFailsImmediately(t *testing.T) {
	q, w, store, _ := newTestQueue(t)
	ctx := context.Background()

	w.Handle("bad", func(context.Context, *Job) error {
		return Permanent(errors.New("malformed payload"))
	})
	_, err := q.Enqueue(ctx, "bad", struct{}{})
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, store.Jobs()[0].Status)
}

func TestWorker_UnknownJobFails(t *testing.T) {
	q, w, store, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "nobody.handles.this", struct{}{})
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, store.Jobs()[0].Status)
}

func TestWorker_RecoversPanics(t *testing.T) {
	q, w, store, _ := newTestQueue(t)
	ctx := context.Background()

	w.Handle("boom", func(context.Context, *Job) error { panic("nil map") })
	_, err := q.Enqueue(ctx, "boom", struct{}{})
	require.NoError(t, err)

	_, err = w.RunOnce(ctx)
	require.NoError(t, err)
	job := store.Jobs()[0]
	assert.Equal(t, StatusPending, job.Status)
	assert.Contains(t, job.LastError.String, "panic")
}

func TestMemoryStore_ReclaimsExpiredLease(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, &Job{ID: "1", Name: "x", Status: StatusPending, RunAt: now, MaxAttempts: 5}))

	claimed, err := store.Claim(ctx, now, DefaultLease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	claimed, err = store.Claim(ctx, now.Add(time.Minute), DefaultLease, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "lease still held")

	claimed, err = store.Claim(ctx, now.Add(DefaultLease+time.Second), DefaultLease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
}

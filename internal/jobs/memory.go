package jobs

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps jobs in process memory. Used when no Postgres URI is
// configured; nothing survives a restart.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Insert(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *MemoryStore) Claim(_ context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for _, j := range s.jobs {
		switch {
		case j.Status == StatusPending && !j.RunAt.After(now):
			due = append(due, j)
		case j.Status == StatusRunning && j.LockedUntil.Valid && j.LockedUntil.Time.Before(now):
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].RunAt.Before(due[b].RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]Job, 0, len(due))
	for _, j := range due {
		j.Status = StatusRunning
		j.Attempts++
		j.LockedUntil = sql.NullTime{Time: now.Add(lease), Valid: true}
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusDone
		j.LockedUntil = sql.NullTime{}
		j.UpdatedAt = now
	})
}

func (s *MemoryStore) Retry(_ context.Context, id string, runAt time.Time, errMsg string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusPending
		j.RunAt = runAt
		j.LastError = sql.NullString{String: errMsg, Valid: true}
		j.LockedUntil = sql.NullTime{}
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, now time.Time, errMsg string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.LastError = sql.NullString{String: errMsg, Valid: true}
		j.LockedUntil = sql.NullTime{}
		j.UpdatedAt = now
	})
}

func (s *MemoryStore) update(id string, fn func(j *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
	return nil
}

// Jobs returns a snapshot of every job, ordered by run time.
func (s *MemoryStore) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].RunAt.Before(out[b].RunAt) })
	return out
}

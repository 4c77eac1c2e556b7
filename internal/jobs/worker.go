package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/metrics"
)

// HandlerFunc runs one step. Returning an error schedules a retry unless the
// error is Permanent or the job has used all its attempts.
type HandlerFunc func(ctx context.Context, job *Job) error

type Worker struct {
	store    Store
	handlers map[string]HandlerFunc
	interval time.Duration
	batch    int
	lease    time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewWorker(store Store, interval time.Duration, log *zap.SugaredLogger) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]HandlerFunc),
		interval: interval,
		batch:    10,
		lease:    DefaultLease,
		log:      log,
		now:      time.Now,
	}
}

// Handle registers the handler for a job name.
func (w *Worker) Handle(name string, h HandlerFunc) {
	w.handlers[name] = h
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infow("job worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Errorw("job poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("job worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of due jobs and runs them in order. It returns the
// number of jobs processed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.store.Claim(ctx, w.now().UTC(), w.lease, w.batch)
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}
	for i := range claimed {
		w.process(ctx, &claimed[i])
	}
	return len(claimed), nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "job", job.Name, "attempt", job.Attempts)

	h, ok := w.handlers[job.Name]
	if !ok {
		w.fail(ctx, job, log, fmt.Errorf("no handler registered for %q", job.Name))
		return
	}

	err := w.safeRun(ctx, h, job)
	now := w.now().UTC()
	if err == nil {
		if err := w.store.Complete(ctx, job.ID, now); err != nil {
			log.Errorw("failed to mark job done", "error", err)
		}
		metrics.JobsProcessed.WithLabelValues(job.Name, "ok").Inc()
		log.Debug("job done")
		return
	}

	if IsPermanent(err) || job.Attempts >= job.MaxAttempts {
		w.fail(ctx, job, log, err)
		return
	}

	runAt := now.Add(Backoff(job.Attempts))
	if err := w.store.Retry(ctx, job.ID, runAt, err.Error()); err != nil {
		log.Errorw("failed to reschedule job", "error", err)
	}
	metrics.JobsProcessed.WithLabelValues(job.Name, "retry").Inc()
	log.Warnw("job failed, retrying", "error", err, "run_at", runAt)
}

func (w *Worker) fail(ctx context.Context, job *Job, log *zap.SugaredLogger, cause error) {
	if err := w.store.Fail(ctx, job.ID, w.now().UTC(), cause.Error()); err != nil {
		log.Errorw("failed to mark job failed", "error", err)
	}
	metrics.JobsProcessed.WithLabelValues(job.Name, "failed").Inc()
	log.Errorw("job failed permanently", "error", cause)
}

func (w *Worker) safeRun(ctx context.Context, h HandlerFunc, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, job)
}

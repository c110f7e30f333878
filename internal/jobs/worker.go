package jobs

import (
	"context"
	"time"
	"gorm.io/gorm"
	"github.com/yungbote/scenedex-backend/internal/logger"
	"github.com/yungbote/scenedex-backend/internal/repos"
	"github.com/yungbote/scenedex-backend/internal/services"
)

type Worker struct {
	db          *gorm.DB
	log         *logger.Logger
	repo        repos.JobRunRepo
	registry    *Registry
	notify      services.JobNotifier
	queues      []string
	concurrency int
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *Registry, notify services.JobNotifier, queues []string, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "JobWorker"),
		repo:        repo,
		registry:    registry,
		notify:      notify,
		queues:      queues,
		concurrency: concurrency,
	}
}

// Start launches the polling pool. Each goroutine claims at most one job at
// a time, so the pool size is the soft concurrency limit per process; excess
// work stays durable in job_run.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		go w.runLoop(ctx)
	}
}

func (w *Worker) runLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	retryDelay := 30 * time.Second
	staleRunning := 2 * time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, w.db, w.queues, retryDelay, staleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			h, ok := w.registry.Get(job.JobType)
			if !ok {
				w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
				jc := NewContext(ctx, w.db, job, w.repo, w.notify)
				jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
				continue
			}
			jc := NewContext(ctx, w.db, job, w.repo, w.notify)
			// If the handler panics, we want to mark failed.
			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
						jc.Fail("panic", errFromRecover(r))
					}
				}()

				if err := h.Run(jc); err != nil {
					w.log.Warn("Job handler returned error", "job_id", job.ID, "job_type", job.JobType, "error", err)
				}
			}()
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error {
	return &panicError{Val: v}
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }

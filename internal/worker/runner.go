// Package worker polls the database for pending task runs and drives
// each claimed run to completion: fetch every URL through the cleaning
// and extraction pipeline, persist documents and auxiliary resources,
// and finalize the run's statistics and storage manifest.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dredge/internal/config"
	"dredge/internal/model"
	"dredge/internal/store"
)

// Executor runs one claimed task run to completion.
type Executor interface {
	Execute(ctx context.Context, run model.TaskRun)
}

// queueStore is the slice of the store the poll loop uses.
type queueStore interface {
	ClaimPendingRuns(ctx context.Context, limit int) ([]model.TaskRun, error)
	DeleteRunsCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner polls for pending runs and dispatches them to its Executor,
// bounded by worker.concurrency. It also owns periodic retention
// cleanup, so exactly one loop per process touches TTL deletion.
type Runner struct {
	cfg  *config.Config
	st   queueStore
	exec Executor
}

func NewRunner(cfg *config.Config, st *store.Store, exec Executor) *Runner {
	return &Runner{cfg: cfg, st: st, exec: exec}
}

// Start polls until ctx is cancelled. Callers run it in its own
// goroutine and keep the process alive.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxRuns := r.cfg.Worker.Concurrency
	if maxRuns <= 0 {
		maxRuns = 2
	}

	sem := make(chan struct{}, maxRuns)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	zap.L().Info("worker started",
		zap.Int("concurrency", maxRuns),
		zap.Duration("poll_interval", pollInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.cfg.Retention.Enabled {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				CleanupExpiredRuns(ctx, r.cfg.Retention, r.st)
				lastCleanup = now
			}
		}

		capacity := maxRuns - len(sem)
		if capacity <= 0 {
			continue
		}

		runs, err := r.st.ClaimPendingRuns(ctx, capacity)
		if err != nil {
			zap.L().Warn("claim pending runs failed", zap.Error(err))
			continue
		}

		for _, run := range runs {
			run := run
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r.exec.Execute(ctx, run)
			}()
		}
	}
}

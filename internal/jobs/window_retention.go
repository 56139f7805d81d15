// Package jobs holds the background jobs started by the server.
//
// window_retention.go implements WindowRetentionJob, which deletes rate limit window rows
// once they are too old to affect any decision. The gate itself never deletes windows;
// without this job the rate_limit_windows table grows by one row per active tenant per window.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smallbiz-platform/tenant-api/internal/safego"
	"github.com/smallbiz-platform/tenant-api/internal/telemetry"
)

// WindowDeleter is implemented by *repositories.RateLimitRepository.
type WindowDeleter interface {
	DeleteExpiredWindows(ctx context.Context, now, keepWindows int64) (int64, error)
}

// WindowRetentionJob periodically removes expired rate limit windows
type WindowRetentionJob struct {
	repo        WindowDeleter
	keepWindows int64
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewWindowRetentionJob creates a job that keeps the most recent keepWindows windows
// of every window length present in the table.
func NewWindowRetentionJob(repo WindowDeleter, keepWindows int) *WindowRetentionJob {
	return &WindowRetentionJob{
		repo:        repo,
		keepWindows: int64(keepWindows),
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// RunOnce performs a single cleanup pass and returns the number of deleted rows
func (j *WindowRetentionJob) RunOnce(ctx context.Context) (int64, error) {
	now := j.now().Unix()
	n, err := j.repo.DeleteExpiredWindows(ctx, now, j.keepWindows)
	if err != nil {
		return 0, err
	}
	telemetry.RetentionWindowsDeletedTotal.Add(float64(n))
	if n > 0 {
		slog.Info("rate limit windows pruned", "deleted", n, "keep_windows", j.keepWindows)
	}
	return n, nil
}

// Start runs a pass immediately and then every interval until Stop or ctx cancellation
func (j *WindowRetentionJob) Start(ctx context.Context, interval time.Duration) {
	slog.Info("starting window retention job", "interval", interval, "keep_windows", j.keepWindows)

	j.wg.Add(1)
	safego.Go("window-retention", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		j.run(ctx)
		for {
			select {
			case <-ticker.C:
				j.run(ctx)
			case <-j.stopCh:
				slog.Info("window retention job stopped")
				return
			case <-ctx.Done():
				return
			}
		}
	})
}

func (j *WindowRetentionJob) run(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		slog.Error("window retention pass failed", "error", err)
	}
}

// Stop stops the job and waits for an in-flight pass to finish
func (j *WindowRetentionJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

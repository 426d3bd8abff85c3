package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/vaultbox"
	"github.com/sagarc03/vaultbox/metrics"
)

// Reconciler purges one soft-deleted file. *vaultbox.FileService implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, id uuid.UUID) error
}

// Sweeper purges every file still pending purge. *vaultbox.FileService implements it.
type Sweeper interface {
	Sweep(ctx context.Context, limit int) (int, error)
}

// PurgeHandler returns the handler for vaultbox.PurgeJobName jobs.
func PurgeHandler(r Reconciler) Handler {
	return func(ctx context.Context, job Job) error {
		var args vaultbox.PurgeArgs
		if err := job.Decode(&args); err != nil {
			metrics.PurgesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
			slog.Error("dropping purge job with unreadable args", "job_id", job.ID, "err", err)
			return nil
		}
		if args.FileID == uuid.Nil {
			metrics.PurgesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
			slog.Error("dropping purge job without file_id", "job_id", job.ID)
			return nil
		}

		if err := r.Reconcile(ctx, args.FileID); err != nil {
			metrics.PurgesTotal.WithLabelValues(metrics.ResultError).Inc()
			return err
		}

		metrics.PurgesTotal.WithLabelValues(metrics.ResultOK).Inc()
		return nil
	}
}

// RunSweeper calls s.Sweep once immediately and then every interval until ctx is
// cancelled. Sweep errors are logged; the next tick tries again.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, limit int) {
	slog.Info("sweeper started", "interval", interval, "limit", limit)

	sweepOnce(ctx, s, limit)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			sweepOnce(ctx, s, limit)
		}
	}
}

func sweepOnce(ctx context.Context, s Sweeper, limit int) {
	start := time.Now()
	n, err := s.Sweep(ctx, limit)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil {
			slog.Error("sweep failed", "purged", n, "err", err)
		}
		return
	}

	if n > 0 {
		slog.Info("sweep finished", "purged", n, "duration", time.Since(start))
	}
}

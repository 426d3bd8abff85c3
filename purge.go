package vaultbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Reconcile purges the object of a soft-deleted file and finalizes its row.
//
// It is safe to call speculatively and to repeat: a missing row, a row that was never
// soft-deleted, and a row that is already finalized are all no-ops that return nil
// without touching the object store.
//
// Otherwise the object is deleted first and the row finalized second, so a crash in
// between leaves a row that is still pending and will be purged again. An object that
// is already gone counts as deleted.
//
// Failures are returned wrapped in ErrPurgeFailed so the executor can retry them.
func (s *FileService) Reconcile(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reconcile %s: %w: %w", id, ErrPurgeFailed, err)
	}

	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			slog.Debug("reconcile skipped, file not found", "file_id", id)
			return nil
		}
		return fmt.Errorf("reconcile %s: %w: %w", id, ErrPurgeFailed, err)
	}

	if !m.IsDeleted || m.Purged() {
		slog.Debug("reconcile skipped", "file_id", id, "is_deleted", m.IsDeleted, "purged", m.Purged())
		return nil
	}

	return s.purge(ctx, m)
}

func (s *FileService) purge(ctx context.Context, m FileMetadata) error {
	if m.InternalID != "" {
		if err := s.store.DeleteObject(ctx, s.cfg.Bucket, m.InternalID); err != nil && !isNotFound(err) {
			return fmt.Errorf("reconcile %s: %w: delete object: %w", m.ID, ErrPurgeFailed, err)
		}
	}

	if err := s.repo.FinalizeDelete(ctx, m.ID); err != nil {
		return fmt.Errorf("reconcile %s: %w: finalize: %w", m.ID, ErrPurgeFailed, err)
	}

	slog.Info("file purged", "file_id", m.ID, "key", m.InternalID)
	return nil
}

// Sweep purges every soft-deleted file that has not been finalized yet, in batches
// of limit rows, until none remain.
//
// It covers purge jobs that were never enqueued or were dropped by the executor.
// A file whose purge fails is logged and skipped for the rest of the sweep so one
// broken object cannot stall the others.
//
// Returns the number of files purged.
func (s *FileService) Sweep(ctx context.Context, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	if limit <= 0 {
		return 0, fmt.Errorf("sweep: %w: limit must be positive", ErrInvalidInput)
	}

	purged := 0
	failed := make(map[uuid.UUID]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return purged, fmt.Errorf("sweep: %w", err)
		}

		// Failed rows stay pending, so ask for enough to see past them.
		pending, err := s.repo.ListPendingPurge(ctx, limit+len(failed))
		if err != nil {
			return purged, fmt.Errorf("sweep: %w", err)
		}

		progressed := false
		for _, m := range pending {
			if _, skip := failed[m.ID]; skip {
				continue
			}
			progressed = true

			if err := s.purge(ctx, m); err != nil {
				slog.Warn("sweep purge failed", "file_id", m.ID, "err", err)
				failed[m.ID] = struct{}{}
				continue
			}
			purged++
		}

		if !progressed {
			break
		}
	}

	if len(failed) > 0 {
		slog.Warn("sweep finished with failures", "purged", purged, "failed", len(failed))
	}

	return purged, nil
}

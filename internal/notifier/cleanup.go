package notifier

import (
	"context"
	"log/slog"
	"time"
)

// RunPruner deletes run history older than a cutoff.
type RunPruner interface {
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Vacuumer interface {
	Vacuum(ctx context.Context) error
}

// CleanupOldRuns removes report run records to prevent database bloat
func CleanupOldRuns(ctx context.Context, store RunPruner, retentionDays int, logger *slog.Logger) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90 // Default to 90 days
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	deleted, err := store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		logger.Info("runs_cleaned_up",
			slog.Int64("deleted", deleted),
			slog.Int("retention_days", retentionDays),
		)
	}
	return deleted, nil
}

// VacuumDatabase reclaims disk space after a cleanup
func VacuumDatabase(ctx context.Context, db Vacuumer, logger *slog.Logger) error {
	logger.Info("vacuum_started")
	start := time.Now()

	if err := db.Vacuum(ctx); err != nil {
		return err
	}

	logger.Info("vacuum_completed", slog.Duration("duration", time.Since(start)))
	return nil
}

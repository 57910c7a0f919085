package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

func (db *DB) RecordRun(ctx context.Context, run *models.ReportRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.WindowStart = run.WindowStart.UTC()
	run.WindowEnd = run.WindowEnd.UTC()

	_, err := db.NamedExecContext(ctx, `
		INSERT INTO report_runs (
			id, config_id, team_id, frequency, window_start, window_end,
			status, skip_reason, total_tickets, sla_performance, avg_satisfaction,
			agents_reported, badges_granted, error, created_at
		) VALUES (
			:id, :config_id, :team_id, :frequency, :window_start, :window_end,
			:status, :skip_reason, :total_tickets, :sla_performance, :avg_satisfaction,
			:agents_reported, :badges_granted, :error, :created_at
		)
	`, run)
	return err
}

// ListRuns returns the most recent runs of a config. A zero configID lists every config.
func (db *DB) ListRuns(ctx context.Context, configID int64, limit int) ([]models.ReportRun, error) {
	if limit <= 0 {
		limit = 50
	}

	runs := []models.ReportRun{}
	err := db.SelectContext(ctx, &runs, `
		SELECT id, config_id, team_id, frequency, window_start, window_end,
			status, skip_reason, total_tickets, sla_performance, avg_satisfaction,
			agents_reported, badges_granted, error, created_at
		FROM report_runs
		WHERE (? = 0 OR config_id = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, configID, configID, limit)
	return runs, err
}

// DeleteRunsBefore prunes run history older than the cutoff.
func (db *DB) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM report_runs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (db *DB) Vacuum(ctx context.Context) error {
	_, err := db.ExecContext(ctx, "VACUUM")
	return err
}

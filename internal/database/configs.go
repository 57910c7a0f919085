package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

var (
	ErrConfigNotFound = errors.New("notification config not found")
	ErrDuplicateTeam  = errors.New("team already has a notification config")
)

const configColumns = `
	id, name, active, team_id, manager_id, manager_email, frequency,
	include_metrics, include_team_performance, include_individual_stats,
	sla_target, response_time_target, resolution_time_target, satisfaction_target,
	enable_gamification, points_per_ticket, points_sla_met, points_satisfaction,
	last_execution, total_notifications, last_avg_satisfaction,
	created_at, updated_at
`

// CreateConfig validates and inserts a config, filling in its ID and timestamps.
func (db *DB) CreateConfig(ctx context.Context, c *models.NotificationConfig) error {
	if err := db.validator.ValidateNotificationConfig(c); err != nil {
		return err
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO notification_configs (
			name, active, team_id, manager_id, manager_email, frequency,
			include_metrics, include_team_performance, include_individual_stats,
			sla_target, response_time_target, resolution_time_target, satisfaction_target,
			enable_gamification, points_per_ticket, points_sla_met, points_satisfaction,
			last_execution, total_notifications, last_avg_satisfaction,
			created_at, updated_at
		) VALUES (
			:name, :active, :team_id, :manager_id, :manager_email, :frequency,
			:include_metrics, :include_team_performance, :include_individual_stats,
			:sla_target, :response_time_target, :resolution_time_target, :satisfaction_target,
			:enable_gamification, :points_per_ticket, :points_sla_met, :points_satisfaction,
			:last_execution, :total_notifications, :last_avg_satisfaction,
			:created_at, :updated_at
		)
	`

	result, err := db.NamedExecContext(ctx, query, c)
	if err != nil {
		return translateWriteError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read config id: %w", err)
	}
	c.ID = id
	return nil
}

// UpdateConfig rewrites the editable fields of an existing config. The run
// counters are left untouched.
func (db *DB) UpdateConfig(ctx context.Context, c *models.NotificationConfig) error {
	if err := db.validator.ValidateNotificationConfig(c); err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE notification_configs SET
			name = :name,
			active = :active,
			team_id = :team_id,
			manager_id = :manager_id,
			manager_email = :manager_email,
			frequency = :frequency,
			include_metrics = :include_metrics,
			include_team_performance = :include_team_performance,
			include_individual_stats = :include_individual_stats,
			sla_target = :sla_target,
			response_time_target = :response_time_target,
			resolution_time_target = :resolution_time_target,
			satisfaction_target = :satisfaction_target,
			enable_gamification = :enable_gamification,
			points_per_ticket = :points_per_ticket,
			points_sla_met = :points_sla_met,
			points_satisfaction = :points_satisfaction,
			updated_at = :updated_at
		WHERE id = :id
	`

	result, err := db.NamedExecContext(ctx, query, c)
	if err != nil {
		return translateWriteError(err)
	}
	return requireRow(result)
}

func (db *DB) GetConfig(ctx context.Context, id int64) (*models.NotificationConfig, error) {
	var c models.NotificationConfig
	err := db.GetContext(ctx, &c, `SELECT `+configColumns+` FROM notification_configs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConfigByTeam returns the config owning the given helpdesk team.
func (db *DB) ConfigByTeam(ctx context.Context, teamID int64) (*models.NotificationConfig, error) {
	var c models.NotificationConfig
	err := db.GetContext(ctx, &c, `SELECT `+configColumns+` FROM notification_configs WHERE team_id = ?`, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) ListConfigs(ctx context.Context) ([]models.NotificationConfig, error) {
	configs := []models.NotificationConfig{}
	err := db.SelectContext(ctx, &configs, `SELECT `+configColumns+` FROM notification_configs ORDER BY id`)
	return configs, err
}

// ActiveConfigs returns the active configs scheduled at the given frequency.
func (db *DB) ActiveConfigs(ctx context.Context, freq models.Frequency) ([]models.NotificationConfig, error) {
	configs := []models.NotificationConfig{}
	err := db.SelectContext(ctx, &configs, `
		SELECT `+configColumns+`
		FROM notification_configs
		WHERE active = 1 AND frequency = ?
		ORDER BY id
	`, freq)
	return configs, err
}

func (db *DB) DeleteConfig(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM notification_configs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// RecordExecution bumps the notification counter and stores the latest
// execution time and average satisfaction.
func (db *DB) RecordExecution(ctx context.Context, id int64, at time.Time, avgSatisfaction float64) error {
	result, err := db.ExecContext(ctx, `
		UPDATE notification_configs SET
			last_execution = ?,
			total_notifications = total_notifications + 1,
			last_avg_satisfaction = ?,
			updated_at = ?
		WHERE id = ?
	`, at.UTC(), avgSatisfaction, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func translateWriteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return ErrDuplicateTeam
		case sqlite3.ErrConstraintCheck:
			return fmt.Errorf("%w: %s", models.ErrValidation, sqliteErr.Error())
		}
	}
	return err
}

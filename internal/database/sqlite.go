package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DB is the local state store: notification configs, badge grants and run history.
type DB struct {
	*sqlx.DB
	validator *models.Validator
}

func InitSQLite(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// Set pragmas for better performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	return &DB{DB: db, validator: models.NewValidator()}, nil
}

// InitSchema applies the embedded migrations. Running it on an up-to-date
// database is a no-op.
func InitSchema(db *DB) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// m.Close would close the shared *sql.DB, so the instance is left for GC.
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations applied successfully")
	return nil
}

// GetRunStats returns statistics about report runs and badges
func (db *DB) GetRunStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	// Configs
	var totalConfigs, activeConfigs int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0)
		FROM notification_configs
	`).Scan(&totalConfigs, &activeConfigs)
	if err != nil {
		return nil, err
	}
	stats["total_configs"] = totalConfigs
	stats["active_configs"] = activeConfigs

	// Total runs
	var total int
	if err := db.GetContext(ctx, &total, "SELECT COUNT(*) FROM report_runs"); err != nil {
		return nil, err
	}
	stats["total_runs"] = total

	byStatus, err := db.countBy(ctx, `
		SELECT status, COUNT(*)
		FROM report_runs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	stats["by_status"] = byStatus

	byFrequency, err := db.countBy(ctx, `
		SELECT frequency, COUNT(*)
		FROM report_runs
		WHERE status = 'sent'
		GROUP BY frequency
	`)
	if err != nil {
		return nil, err
	}
	stats["sent_by_frequency"] = byFrequency

	// Reports sent in last 24 hours
	var last24h int
	err = db.GetContext(ctx, &last24h, `
		SELECT COUNT(*)
		FROM report_runs
		WHERE status = 'sent'
		AND created_at > ?
	`, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	stats["sent_last_24h"] = last24h

	byTier, err := db.countBy(ctx, `
		SELECT tier, COUNT(*)
		FROM badge_grants
		GROUP BY tier
	`)
	if err != nil {
		return nil, err
	}
	stats["badges_by_tier"] = byTier

	// Team performance over the last 7 days of sent reports
	var avgSLA, avgSat, minSLA sql.NullFloat64
	err = db.QueryRowContext(ctx, `
		SELECT
			AVG(sla_performance),
			AVG(avg_satisfaction),
			MIN(sla_performance)
		FROM report_runs
		WHERE status = 'sent'
		AND created_at > ?
	`, time.Now().UTC().Add(-7*24*time.Hour)).Scan(&avgSLA, &avgSat, &minSLA)
	if err != nil {
		return nil, err
	}

	perf := make(map[string]interface{})
	if avgSLA.Valid {
		perf["average_sla_performance"] = avgSLA.Float64
	}
	if minSLA.Valid {
		perf["minimum_sla_performance"] = minSLA.Float64
	}
	if avgSat.Valid {
		perf["average_satisfaction"] = avgSat.Float64
	}
	stats["performance_7d"] = perf

	return stats, nil
}

func (db *DB) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

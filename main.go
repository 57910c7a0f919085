package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/voicetel/helpdesk-reporter/internal/config"
	"github.com/voicetel/helpdesk-reporter/internal/database"
	"github.com/voicetel/helpdesk-reporter/internal/events"
	"github.com/voicetel/helpdesk-reporter/internal/logging"
	"github.com/voicetel/helpdesk-reporter/internal/mailer"
	"github.com/voicetel/helpdesk-reporter/internal/metrics"
	"github.com/voicetel/helpdesk-reporter/internal/models"
	"github.com/voicetel/helpdesk-reporter/internal/notifier"
	"github.com/voicetel/helpdesk-reporter/internal/slack"
)

// Version information - these will be set at build time via ldflags
var (
	Version   = "dev"     // Version number
	GitCommit = "unknown" // Git commit hash
	BuildDate = "unknown" // Build date
	GoVersion = "unknown" // Go version used to build
)

func main() {
	// Parse command line flags
	cfg := config.ParseFlags()

	// Check for version flag before other validation
	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Set up logging
	logger := logging.NewLogger(cfg.LogFormat, cfg.Verbose, nil, logging.BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
	})
	logger.SetAsDefault()

	logger.Verbose("starting",
		"frequency", cfg.Frequency,
		"daemon", cfg.Daemon,
		"dry_run", cfg.DryRun,
		"timezone", cfg.Schedule.Timezone,
	)

	ctx := context.Background()

	// Check connections mode
	if cfg.CheckConnections {
		if err := checkConnections(ctx, cfg, logger); err != nil {
			logger.LogError("connection_check_failed", err)
			os.Exit(1)
		}
		fmt.Println("All connections successful!")
		os.Exit(0)
	}

	// Initialize SQLite database
	db, err := database.InitSQLite(cfg.DBPath)
	if err != nil {
		logger.LogError("sqlite_init_failed", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations are idempotent, so every mode applies them
	if err := database.InitSchema(db); err != nil {
		logger.LogError("migration_failed", err)
		os.Exit(1)
	}
	if cfg.InitDB {
		fmt.Println("Database initialized successfully!")
		os.Exit(0)
	}

	// Cleanup mode
	if cfg.Cleanup {
		if err := performCleanup(ctx, db, cfg, logger); err != nil {
			logger.LogError("cleanup_failed", err)
			os.Exit(1)
		}
		fmt.Println("Cleanup completed successfully!")
		os.Exit(0)
	}

	// Stats only mode
	if cfg.StatsOnly {
		if err := printStats(ctx, db); err != nil {
			logger.LogError("stats_failed", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Initialize helpdesk connection
	helpdesk, err := database.ConnectHelpdesk(cfg.Helpdesk)
	if err != nil {
		logger.LogError("helpdesk_connect_failed", err, "target", cfg.HelpdeskTarget())
		os.Exit(1)
	}
	defer helpdesk.Close()

	m := metrics.New()
	engine, mail, closeEvents, err := buildEngine(cfg, db, helpdesk, m, logger)
	if err != nil {
		logger.LogError("engine_init_failed", err)
		os.Exit(1)
	}
	defer closeEvents()

	// Preview mode
	if cfg.PreviewTeam > 0 {
		if err := previewTeam(ctx, db, engine, mail, cfg.PreviewTeam); err != nil {
			logger.LogError("preview_failed", err, "team_id", cfg.PreviewTeam)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Daemon mode
	if cfg.Daemon {
		if err := runDaemon(ctx, cfg, db, engine, m, logger); err != nil {
			logger.LogError("daemon_failed", err)
			os.Exit(1)
		}
		return
	}

	// One-shot run
	freq, _ := models.ParseFrequency(cfg.Frequency)
	stats, err := engine.RunScheduled(ctx, freq)
	if err != nil {
		logger.LogError("report_run_failed", err, "frequency", string(freq))
		os.Exit(1)
	}

	// Print statistics if requested
	if cfg.Stats || cfg.Verbose {
		printRunStats(stats, logger)
	}
}

// buildEngine wires the report engine to its stores and outbound channels.
// The returned func closes the event publisher.
func buildEngine(cfg *config.Config, db *database.DB, helpdesk *database.Helpdesk, m *metrics.Metrics, logger *logging.Logger) (*notifier.Engine, *mailer.Mailer, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}

	mail, err := mailer.New(cfg.SMTP, cfg.Helpdesk.URL, logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := notifier.Options{
		Tickets:    helpdesk,
		Configs:    db,
		Badges:     db,
		Sender:     mail,
		Runs:       db,
		Metrics:    m,
		Logger:     logger.Logger,
		BadgeRules: cfg.Badges.Rules(),
		Location:   loc,
		DryRun:     cfg.DryRun,
	}

	if cfg.Slack.WebhookURL != "" {
		opts.Summary = slack.NewClient(cfg.Slack)
	}

	closeEvents := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka, logger.Logger)
		opts.Events = publisher
		closeEvents = func() {
			if err := publisher.Close(); err != nil {
				logger.LogError("kafka_close_failed", err)
			}
		}
	} else {
		opts.Events = events.Nop{}
	}

	return notifier.New(opts), mail, closeEvents, nil
}

func printVersion() {
	fmt.Printf("Helpdesk Reporter\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Go Version: %s\n", GoVersion)
}

func checkConnections(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("checking_connections")

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	// Local state database
	db, err := database.InitSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("SQLite open failed: %w", err)
	}
	err = db.PingContext(ctx)
	db.Close()
	if err != nil {
		return fmt.Errorf("SQLite ping failed: %w", err)
	}
	logger.Info("sqlite_ok", "path", cfg.DBPath)

	// Helpdesk database
	helpdesk, err := database.ConnectHelpdesk(cfg.Helpdesk)
	if err != nil {
		return fmt.Errorf("helpdesk connection failed: %w", err)
	}
	err = helpdesk.Ping(ctx)
	helpdesk.Close()
	if err != nil {
		return fmt.Errorf("helpdesk ping failed: %w", err)
	}
	logger.Info("helpdesk_ok", "target", cfg.HelpdeskTarget())

	// SMTP
	if cfg.SMTP.Host != "" {
		mail, err := mailer.New(cfg.SMTP, cfg.Helpdesk.URL, logger.Logger)
		if err != nil {
			return err
		}
		if err := mail.Ping(ctx); err != nil {
			return fmt.Errorf("SMTP check failed: %w", err)
		}
		logger.Info("smtp_ok", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
	}

	// Slack webhook
	if cfg.Slack.WebhookURL != "" {
		if err := slack.TestWebhook(ctx, cfg.Slack); err != nil {
			return fmt.Errorf("Slack webhook test failed: %w", err)
		}
		logger.Info("slack_ok")
	}

	return nil
}

func previewTeam(ctx context.Context, db *database.DB, engine *notifier.Engine, mail *mailer.Mailer, teamID int64) error {
	cfg, err := db.ConfigByTeam(ctx, teamID)
	if err != nil {
		return err
	}

	report, err := engine.Preview(ctx, cfg)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Printf("No tickets for team %d in the previous %s window.\n", teamID, cfg.Frequency)
		return nil
	}

	body, err := mail.Render(report)
	if err != nil {
		return err
	}
	fmt.Println(body)
	return nil
}

func printStats(ctx context.Context, db *database.DB) error {
	stats, err := db.GetRunStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	// Always use human-readable format for --stats-only
	printHumanReadableStats(stats)
	return nil
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %s: %d\n", k, counts[k])
	}
	fmt.Println()
}

func printHumanReadableStats(stats map[string]interface{}) {
	fmt.Printf("\n=== Helpdesk Reporter Statistics ===\n\n")

	if total, ok := stats["total_configs"].(int); ok {
		active, _ := stats["active_configs"].(int)
		fmt.Printf("Configs: %d (%d active)\n", total, active)
	}

	if total, ok := stats["total_runs"].(int); ok {
		fmt.Printf("Total Report Runs: %d\n\n", total)
	}

	if byStatus, ok := stats["by_status"].(map[string]int); ok {
		printCounts("By Status", byStatus)
	}

	if byFreq, ok := stats["sent_by_frequency"].(map[string]int); ok {
		printCounts("Sent By Frequency", byFreq)
	}

	if sent24h, ok := stats["sent_last_24h"].(int); ok {
		fmt.Printf("Sent in Last 24 Hours: %d\n\n", sent24h)
	}

	if byTier, ok := stats["badges_by_tier"].(map[string]int); ok {
		printCounts("Badges By Tier", byTier)
	}

	if perf, ok := stats["performance_7d"].(map[string]interface{}); ok {
		fmt.Printf("Team Performance (Last 7 Days):\n")
		if avg, ok := perf["average_sla_performance"].(float64); ok {
			fmt.Printf("  Average SLA: %.1f%%\n", avg)
		}
		if min, ok := perf["minimum_sla_performance"].(float64); ok {
			fmt.Printf("  Minimum SLA: %.1f%%\n", min)
		}
		if sat, ok := perf["average_satisfaction"].(float64); ok {
			fmt.Printf("  Average Satisfaction: %.2f/5\n", sat)
		}
	}
}

func printRunStats(stats *models.RunStats, logger *logging.Logger) {
	statsMap := map[string]interface{}{
		"configs_checked": stats.ConfigsChecked,
		"reports_sent":    stats.ReportsSent,
		"configs_skipped": stats.ConfigsSkipped,
		"badges_granted":  stats.BadgesGranted,
		"errors":          stats.Errors,
		"duration":        stats.Duration.String(),
	}

	// Use the logger's structured logging capability
	logger.LogRunStats(statsMap)

	// Also print human-readable format for console output
	fmt.Printf("\n=== Run Statistics ===\n")
	fmt.Printf("Configs checked: %d\n", stats.ConfigsChecked)
	fmt.Printf("Reports sent: %d\n", stats.ReportsSent)
	fmt.Printf("Configs skipped: %d\n", stats.ConfigsSkipped)
	fmt.Printf("Badges granted: %d\n", stats.BadgesGranted)
	fmt.Printf("Errors: %d\n", stats.Errors)
	fmt.Printf("Duration: %s\n", stats.Duration)
}

func performCleanup(ctx context.Context, db *database.DB, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("cleanup_started",
		"retention_days", cfg.RetentionDays,
		"auto_vacuum", cfg.AutoVacuum,
	)

	if _, err := notifier.CleanupOldRuns(ctx, db, cfg.RetentionDays, logger.Component("cleanup")); err != nil {
		return fmt.Errorf("failed to cleanup old runs: %w", err)
	}

	if cfg.AutoVacuum {
		if err := notifier.VacuumDatabase(ctx, db, logger.Component("cleanup")); err != nil {
			return fmt.Errorf("failed to vacuum database: %w", err)
		}
	}

	return nil
}

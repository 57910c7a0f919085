package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voicetel/helpdesk-reporter/internal/api"
	"github.com/voicetel/helpdesk-reporter/internal/config"
	"github.com/voicetel/helpdesk-reporter/internal/database"
	"github.com/voicetel/helpdesk-reporter/internal/logging"
	"github.com/voicetel/helpdesk-reporter/internal/metrics"
	"github.com/voicetel/helpdesk-reporter/internal/notifier"
	"github.com/voicetel/helpdesk-reporter/internal/scheduler"
)

const (
	cleanupSpec     = "0 30 3 * * *"
	shutdownTimeout = 30 * time.Second
)

// runDaemon serves the admin API and fires scheduled runs until SIGINT or SIGTERM.
func runDaemon(ctx context.Context, cfg *config.Config, db *database.DB, engine *notifier.Engine, m *metrics.Metrics, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	sched, err := scheduler.New(engine, cfg.Schedule, loc, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	cleanupLog := logger.Component("cleanup")
	err = sched.AddJob("cleanup", cleanupSpec, func(ctx context.Context) {
		if _, err := notifier.CleanupOldRuns(ctx, db, cfg.RetentionDays, cleanupLog); err != nil {
			cleanupLog.Error("cleanup_failed", "error", err.Error())
			return
		}
		if cfg.AutoVacuum {
			if err := notifier.VacuumDatabase(ctx, db, cleanupLog); err != nil {
				cleanupLog.Error("vacuum_failed", "error", err.Error())
			}
		}
	})
	if err != nil {
		return err
	}

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(db, engine, m, cfg.HTTP.AdminToken, logger.Logger)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", cfg.HTTP.Addr, "auth", cfg.HTTP.AdminToken != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sched.Start(ctx)
	logger.Info("daemon_started", "timezone", loc.String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.LogError("http_shutdown_failed", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.LogError("scheduler_shutdown_timeout", err)
	}

	logger.Info("daemon_stopped")
	return runErr
}

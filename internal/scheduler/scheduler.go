package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/voicetel/helpdesk-reporter/internal/config"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// Runner executes one scheduled report run.
type Runner interface {
	RunScheduled(ctx context.Context, freq models.Frequency) (*models.RunStats, error)
}

// Scheduler triggers report runs from cron specs in daemon mode.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

// cronLogger adapts slog.Logger to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// New registers a job for every frequency with a non-empty spec. Specs use
// six fields, seconds first.
func New(runner Runner, cfg config.ScheduleConfig, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger = logger.With(slog.String("component", "scheduler"))
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}

	specs := []struct {
		freq models.Frequency
		spec string
	}{
		{models.FrequencyDaily, cfg.Daily},
		{models.FrequencyWeekly, cfg.Weekly},
		{models.FrequencyMonthly, cfg.Monthly},
	}
	for _, sp := range specs {
		if sp.spec == "" {
			continue
		}
		freq := sp.freq
		if err := s.AddJob(string(freq), sp.spec, func(ctx context.Context) {
			s.runReports(ctx, freq)
		}); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// AddJob schedules fn under a unique name. fn receives the context passed to Start.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		fn(s.context())
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression for %s job %q: %w", name, spec, err)
	}
	s.entries[name] = id

	s.logger.Info("job_scheduled", slog.String("job", name), slog.String("spec", spec))
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) runReports(ctx context.Context, freq models.Frequency) {
	stats, err := s.runner.RunScheduled(ctx, freq)
	if err != nil {
		s.logger.Error("scheduled_run_failed",
			slog.String("frequency", string(freq)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("scheduled_run_completed",
		slog.String("frequency", string(freq)),
		slog.Int("configs_checked", stats.ConfigsChecked),
		slog.Int("reports_sent", stats.ReportsSent),
		slog.Int("configs_skipped", stats.ConfigsSkipped),
		slog.Int("badges_granted", stats.BadgesGranted),
		slog.Duration("duration", stats.Duration),
	)
}

// Start begins firing jobs. Jobs see ctx and should stop when it is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	for name, next := range s.NextRuns() {
		s.logger.Info("job_next_run", slog.String("job", name), slog.Time("at", next))
	}
}

// Stop prevents new runs and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRuns reports when each job fires next. Zero before Start.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

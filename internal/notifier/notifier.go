package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voicetel/helpdesk-reporter/internal/metrics"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// TicketSource is the read-only view of the helpdesk.
type TicketSource interface {
	TeamTickets(ctx context.Context, teamID int64, from, to time.Time) ([]models.Ticket, error)
	AgentTickets(ctx context.Context, teamID, agentID int64, from, to time.Time) ([]models.Ticket, error)
	UpdatedTickets(ctx context.Context, teamID int64, from, to time.Time) ([]models.Ticket, error)
	TeamStages(ctx context.Context, teamID int64) ([]models.Stage, error)
	TeamMembers(ctx context.Context, teamID int64) ([]models.Agent, error)
}

type ConfigStore interface {
	ActiveConfigs(ctx context.Context, freq models.Frequency) ([]models.NotificationConfig, error)
	RecordExecution(ctx context.Context, id int64, at time.Time, avgSatisfaction float64) error
}

type BadgeStore interface {
	HasBadge(ctx context.Context, badgeID string, userID int64) (bool, error)
	GrantBadge(ctx context.Context, g *models.BadgeGrant) (bool, error)
}

type RunRecorder interface {
	RecordRun(ctx context.Context, run *models.ReportRun) error
}

type ReportSender interface {
	SendReport(ctx context.Context, to string, report *models.Report) error
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...models.Event) error
}

type SummaryPoster interface {
	PostReportSummary(ctx context.Context, report *models.Report) error
}

// Options wires an Engine. Tickets, Configs, Badges and Sender are required;
// the rest may be left nil.
type Options struct {
	Tickets TicketSource
	Configs ConfigStore
	Badges  BadgeStore
	Sender  ReportSender

	Runs    RunRecorder
	Events  EventPublisher
	Summary SummaryPoster
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	BadgeRules []models.BadgeRule
	Location   *time.Location
	DryRun     bool
	Now        func() time.Time
}

type Engine struct {
	tickets TicketSource
	configs ConfigStore
	badges  BadgeStore
	sender  ReportSender
	runs    RunRecorder
	events  EventPublisher
	summary SummaryPoster
	metrics *metrics.Metrics
	logger  *slog.Logger

	rules  []models.BadgeRule
	loc    *time.Location
	dryRun bool
	now    func() time.Time

	// serializes scheduled and manually triggered runs
	runMu sync.Mutex
}

func New(opts Options) *Engine {
	e := &Engine{
		tickets: opts.Tickets,
		configs: opts.Configs,
		badges:  opts.Badges,
		sender:  opts.Sender,
		runs:    opts.Runs,
		events:  opts.Events,
		summary: opts.Summary,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		rules:   opts.BadgeRules,
		loc:     opts.Location,
		dryRun:  opts.DryRun,
		now:     opts.Now,
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(slog.String("component", "engine"))
	if len(e.rules) == 0 {
		e.rules = models.DefaultBadgeRules()
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}

	return e
}

// RunDailyUpdate reports on yesterday for every active daily config.
func (e *Engine) RunDailyUpdate(ctx context.Context) (*models.RunStats, error) {
	return e.RunScheduled(ctx, models.FrequencyDaily)
}

// RunScheduled processes every active config of the given frequency over the
// previous complete period. The first error aborts the run; configs already
// processed keep their counter updates.
func (e *Engine) RunScheduled(ctx context.Context, freq models.Frequency) (*models.RunStats, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	began := time.Now()
	stats := &models.RunStats{}

	finish := func(err error) (*models.RunStats, error) {
		stats.Duration = time.Since(began)
		e.metrics.ObserveRun(freq, stats.Duration, err)
		return stats, err
	}

	window, err := PreviousWindow(freq, e.now(), e.loc)
	if err != nil {
		return finish(err)
	}

	configs, err := e.configs.ActiveConfigs(ctx, freq)
	if err != nil {
		return finish(fmt.Errorf("failed to get active configs: %w", err))
	}

	e.logger.Debug("run_started",
		slog.String("frequency", string(freq)),
		slog.Time("window_start", window.Start),
		slog.Time("window_end", window.End),
		slog.Int("configs", len(configs)),
	)

	for i := range configs {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		cfg := &configs[i]
		stats.ConfigsChecked++

		if err := e.processConfig(ctx, cfg, window, stats); err != nil {
			stats.Errors++
			return finish(fmt.Errorf("config %d (team %d): %w", cfg.ID, cfg.TeamID, err))
		}
	}

	return finish(nil)
}

func (e *Engine) processConfig(ctx context.Context, cfg *models.NotificationConfig, w models.Window, stats *models.RunStats) error {
	log := e.logger.With(slog.Int64("config_id", cfg.ID), slog.Int64("team_id", cfg.TeamID))

	if strings.TrimSpace(cfg.ManagerEmail) == "" {
		log.Debug("config_skipped", slog.String("reason", models.SkipNoManagerEmail))
		e.skip(ctx, cfg, w, models.SkipNoManagerEmail, stats)
		return nil
	}

	report, err := e.buildReport(ctx, cfg, w, true)
	if err != nil {
		e.recordRun(ctx, newRun(cfg, w, models.RunFailed, nil, err))
		return err
	}
	if report == nil {
		log.Debug("config_skipped", slog.String("reason", models.SkipNoTickets))
		e.skip(ctx, cfg, w, models.SkipNoTickets, stats)
		return nil
	}
	stats.BadgesGranted += len(report.BadgesGranted)

	if e.dryRun {
		log.Info("report_dry_run",
			slog.String("to", cfg.ManagerEmail),
			slog.String("period", report.Date),
			slog.Int("total_tickets", report.TeamMetrics.TotalTickets),
			slog.Float64("sla_performance", report.TeamMetrics.SLAPerformance),
			slog.Float64("avg_satisfaction", report.TeamMetrics.AvgSatisfaction),
			slog.Int("agents", len(report.Agents)),
		)
		e.recordRun(ctx, newRun(cfg, w, models.RunDryRun, report, nil))
		return nil
	}

	if err := e.sender.SendReport(ctx, cfg.ManagerEmail, report); err != nil {
		err = fmt.Errorf("failed to send report to %s: %w", cfg.ManagerEmail, err)
		e.recordRun(ctx, newRun(cfg, w, models.RunFailed, report, err))
		return err
	}

	stats.ReportsSent++
	e.metrics.ReportSent(cfg.Frequency)

	// The report is out; history must show it even when the counters lag.
	if err := e.configs.RecordExecution(ctx, cfg.ID, report.GeneratedAt, report.TeamMetrics.AvgSatisfaction); err != nil {
		err = fmt.Errorf("report delivered but failed to update config counters: %w", err)
		e.recordRun(ctx, newRun(cfg, w, models.RunFailed, report, err))
		return err
	}

	e.recordRun(ctx, newRun(cfg, w, models.RunSent, report, nil))

	log.Info("report_sent",
		slog.String("to", cfg.ManagerEmail),
		slog.String("period", report.Date),
		slog.Int("total_tickets", report.TeamMetrics.TotalTickets),
		slog.String("sla_status", report.SLAStatus),
		slog.String("satisfaction_status", report.SatisfactionStatus),
	)

	e.announce(ctx, report)
	return nil
}

// BuildReport assembles the report for a config without granting badges,
// sending anything or touching counters. Nil means the window is empty.
func (e *Engine) BuildReport(ctx context.Context, cfg *models.NotificationConfig, w models.Window) (*models.Report, error) {
	return e.buildReport(ctx, cfg, w, false)
}

// Preview builds the report a config would receive for its previous period.
func (e *Engine) Preview(ctx context.Context, cfg *models.NotificationConfig) (*models.Report, error) {
	w, err := PreviousWindow(cfg.Frequency, e.now(), e.loc)
	if err != nil {
		return nil, err
	}
	return e.BuildReport(ctx, cfg, w)
}

func (e *Engine) buildReport(ctx context.Context, cfg *models.NotificationConfig, w models.Window, grantBadges bool) (*models.Report, error) {
	team, err := e.ComputeTeamMetrics(ctx, cfg, w)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, nil
	}

	members, err := e.tickets.TeamMembers(ctx, cfg.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team members: %w", err)
	}

	agents := make([]models.AgentPerformance, 0, len(members))
	var awards []models.BadgeAward
	for _, member := range members {
		perf, err := e.ComputeAgentPerformance(ctx, cfg, member.ID, w)
		if err != nil {
			return nil, err
		}
		if perf == nil {
			continue
		}
		perf.AgentName = member.Name
		agents = append(agents, *perf)

		if !grantBadges {
			continue
		}
		award, err := e.UpdateBadges(ctx, cfg, member.ID, perf.PointsEarned)
		if err != nil {
			return nil, err
		}
		if award != nil {
			award.AgentName = member.Name
			awards = append(awards, *award)
			e.publish(ctx, models.Event{
				Type:     models.EventBadgeGranted,
				ConfigID: cfg.ID,
				TeamID:   cfg.TeamID,
				Badge:    award,
			})
		}
	}

	updated, err := e.tickets.UpdatedTickets(ctx, cfg.TeamID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get updated tickets: %w", err)
	}
	activity := make([]models.TicketActivity, 0, len(updated))
	for _, t := range updated {
		activity = append(activity, models.TicketActivity{
			TicketID:   t.ID,
			Name:       t.Name,
			Number:     t.Number,
			Stage:      t.StageName,
			LastUpdate: t.UpdatedAt,
			Priority:   t.Priority,
		})
	}

	return &models.Report{
		Config:             *cfg,
		Window:             w,
		Date:               w.Label(),
		TeamMetrics:        *team,
		Agents:             agents,
		SLAStatus:          models.TargetStatus(team.SLAPerformance, cfg.SLATarget),
		SatisfactionStatus: models.TargetStatus(team.SatisfactionPercent(), cfg.SatisfactionTarget),
		BadgesGranted:      awards,
		UpdatedTickets:     activity,
		GeneratedAt:        e.now(),
	}, nil
}

func (e *Engine) skip(ctx context.Context, cfg *models.NotificationConfig, w models.Window, reason string, stats *models.RunStats) {
	stats.ConfigsSkipped++
	e.metrics.ConfigSkipped(reason)

	run := newRun(cfg, w, models.RunSkipped, nil, nil)
	run.SkipReason = reason
	e.recordRun(ctx, run)
}

// announce fans a sent report out to chat and the event bus. Failures are
// logged only.
func (e *Engine) announce(ctx context.Context, report *models.Report) {
	if e.summary != nil {
		if err := e.summary.PostReportSummary(ctx, report); err != nil {
			e.logger.Warn("summary_post_failed",
				slog.Int64("config_id", report.Config.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	summary := report.Summary()
	e.publish(ctx, models.Event{
		Type:     models.EventReportSent,
		ConfigID: report.Config.ID,
		TeamID:   report.Config.TeamID,
		Report:   &summary,
	})
}

func (e *Engine) publish(ctx context.Context, ev models.Event) {
	if e.events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("event_publish_failed",
			slog.String("type", ev.Type),
			slog.Int64("team_id", ev.TeamID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) recordRun(ctx context.Context, run *models.ReportRun) {
	if e.runs == nil {
		return
	}
	run.CreatedAt = e.now().UTC()
	if err := e.runs.RecordRun(ctx, run); err != nil {
		e.logger.Warn("run_record_failed",
			slog.Int64("config_id", run.ConfigID),
			slog.String("status", string(run.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func newRun(cfg *models.NotificationConfig, w models.Window, status models.RunStatus, report *models.Report, err error) *models.ReportRun {
	run := &models.ReportRun{
		ConfigID:    cfg.ID,
		TeamID:      cfg.TeamID,
		Frequency:   w.Frequency,
		WindowStart: w.Start,
		WindowEnd:   w.End,
		Status:      status,
	}
	if report != nil {
		run.TotalTickets = report.TeamMetrics.TotalTickets
		run.SLAPerformance = report.TeamMetrics.SLAPerformance
		run.AvgSatisfaction = report.TeamMetrics.AvgSatisfaction
		run.AgentsReported = len(report.Agents)
		run.BadgesGranted = len(report.BadgesGranted)
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := InitSQLite(filepath.Join(t.TempDir(), "state", "reporter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(db))
	return db
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := newTestDB(t)

	assert.NoError(t, InitSchema(db))
}

func TestCreateConfig_AssignsIDAndRoundTrips(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	cfg.Frequency = models.FrequencyWeekly
	cfg.IncludeIndividualStats = false
	require.NoError(t, db.CreateConfig(ctx, cfg))
	assert.NotZero(t, cfg.ID)

	got, err := db.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Support", got.Name)
	assert.Equal(t, models.FrequencyWeekly, got.Frequency)
	assert.True(t, got.Active)
	assert.False(t, got.IncludeIndividualStats)
	assert.Equal(t, 95.0, got.SLATarget)
	assert.Equal(t, 15, got.PointsSatisfaction)
	assert.Nil(t, got.LastExecution)
	assert.Zero(t, got.TotalNotifications)
}

func TestCreateConfig_RejectsInvalidTargets(t *testing.T) {
	db := newTestDB(t)

	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	cfg.SatisfactionTarget = 120

	err := db.CreateConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, models.ErrValidation)

	configs, err := db.ListConfigs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestCreateConfig_OnePerTeam(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateConfig(ctx, models.NewNotificationConfig("First", 7, "")))

	err := db.CreateConfig(ctx, models.NewNotificationConfig("Second", 7, ""))
	assert.ErrorIs(t, err, ErrDuplicateTeam)
}

func TestConfigByTeam(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := models.NewNotificationConfig("Billing", 12, "billing@example.com")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	got, err := db.ConfigByTeam(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)

	_, err = db.ConfigByTeam(ctx, 99)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestUpdateConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	cfg.SLATarget = 80
	cfg.Active = false
	require.NoError(t, db.UpdateConfig(ctx, cfg))

	got, err := db.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, got.SLATarget)
	assert.False(t, got.Active)

	missing := models.NewNotificationConfig("Ghost", 8, "")
	missing.ID = 404
	assert.ErrorIs(t, db.UpdateConfig(ctx, missing), ErrConfigNotFound)
}

func TestActiveConfigs_FiltersByFrequencyAndActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	daily := models.NewNotificationConfig("Daily", 1, "a@example.com")
	weekly := models.NewNotificationConfig("Weekly", 2, "b@example.com")
	weekly.Frequency = models.FrequencyWeekly
	inactive := models.NewNotificationConfig("Paused", 3, "c@example.com")
	inactive.Active = false

	for _, c := range []*models.NotificationConfig{daily, weekly, inactive} {
		require.NoError(t, db.CreateConfig(ctx, c))
	}

	configs, err := db.ActiveConfigs(ctx, models.FrequencyDaily)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, daily.ID, configs[0].ID)
}

func TestRecordExecution(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	first := time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)
	require.NoError(t, db.RecordExecution(ctx, cfg.ID, first, 4.5))
	require.NoError(t, db.RecordExecution(ctx, cfg.ID, first.Add(24*time.Hour), 3.0))

	got, err := db.GetConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalNotifications)
	assert.Equal(t, 3.0, got.LastAvgSatisfaction)
	require.NotNil(t, got.LastExecution)
	assert.True(t, first.Add(24*time.Hour).Equal(*got.LastExecution))

	assert.ErrorIs(t, db.RecordExecution(ctx, 404, first, 0), ErrConfigNotFound)
}

func TestDeleteConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cfg := models.NewNotificationConfig("Support", 7, "")
	require.NoError(t, db.CreateConfig(ctx, cfg))

	require.NoError(t, db.DeleteConfig(ctx, cfg.ID))
	assert.ErrorIs(t, db.DeleteConfig(ctx, cfg.ID), ErrConfigNotFound)

	_, err := db.GetConfig(ctx, cfg.ID)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestGrantBadge_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	has, err := db.HasBadge(ctx, "expert_badge", 42)
	require.NoError(t, err)
	assert.False(t, has)

	granted, err := db.GrantBadge(ctx, &models.BadgeGrant{BadgeID: "expert_badge", Tier: "expert", UserID: 42, Points: 1000})
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = db.GrantBadge(ctx, &models.BadgeGrant{BadgeID: "expert_badge", Tier: "expert", UserID: 42, Points: 1200})
	require.NoError(t, err)
	assert.False(t, granted)

	has, err = db.HasBadge(ctx, "expert_badge", 42)
	require.NoError(t, err)
	assert.True(t, has)

	badges, err := db.ListBadges(ctx, 42)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, 1000, badges[0].Points)
}

func TestRunsAndStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Second)

	sent := &models.ReportRun{
		ConfigID: 1, TeamID: 7, Frequency: models.FrequencyDaily,
		WindowStart: start, WindowEnd: end,
		Status: models.RunSent, TotalTickets: 10, SLAPerformance: 80, AvgSatisfaction: 4.5,
	}
	skipped := &models.ReportRun{
		ConfigID: 2, TeamID: 8, Frequency: models.FrequencyDaily,
		WindowStart: start, WindowEnd: end,
		Status: models.RunSkipped, SkipReason: models.SkipNoManagerEmail,
	}
	old := &models.ReportRun{
		ConfigID: 1, TeamID: 7, Frequency: models.FrequencyDaily,
		WindowStart: start, WindowEnd: end,
		Status: models.RunSent, CreatedAt: time.Now().UTC().Add(-200 * 24 * time.Hour).Truncate(time.Second),
	}
	for _, r := range []*models.ReportRun{sent, skipped, old} {
		require.NoError(t, db.RecordRun(ctx, r))
	}
	assert.Len(t, sent.ID, 36)

	_, err := db.GrantBadge(ctx, &models.BadgeGrant{BadgeID: "rising_star_badge", Tier: "rising_star", UserID: 3, Points: 150})
	require.NoError(t, err)

	stats, err := db.GetRunStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_runs"])
	assert.Equal(t, map[string]int{"sent": 2, "skipped": 1}, stats["by_status"])
	assert.Equal(t, 1, stats["sent_last_24h"])
	assert.Equal(t, map[string]int{"rising_star": 1}, stats["badges_by_tier"])

	perf := stats["performance_7d"].(map[string]interface{})
	assert.Equal(t, 80.0, perf["average_sla_performance"])

	runs, err := db.ListRuns(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	deleted, err := db.DeleteRunsBefore(ctx, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

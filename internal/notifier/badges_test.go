package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

func TestUpdateBadges_Thresholds(t *testing.T) {
	tests := []struct {
		points  int
		badgeID string
		tier    models.BadgeTier
	}{
		{points: 99},
		{points: 100, badgeID: "rising_star_badge", tier: models.BadgeRisingStar},
		{points: 499, badgeID: "rising_star_badge", tier: models.BadgeRisingStar},
		{points: 500, badgeID: "professional_badge", tier: models.BadgeProfessional},
		{points: 999, badgeID: "professional_badge", tier: models.BadgeProfessional},
		{points: 1000, badgeID: "expert_badge", tier: models.BadgeExpert},
		{points: 4200, badgeID: "expert_badge", tier: models.BadgeExpert},
	}

	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			e, deps := newTestEngine(t, false)
			cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
			cfg.ID = 3

			if tt.badgeID != "" {
				deps.badges.On("HasBadge", mock.Anything, tt.badgeID, int64(42)).Return(false, nil)
				deps.badges.On("GrantBadge", mock.Anything, mock.MatchedBy(func(g *models.BadgeGrant) bool {
					return g.BadgeID == tt.badgeID && g.UserID == 42 && g.Points == tt.points && g.ConfigID == 3 && g.Tier == tt.tier.Key()
				})).Return(true, nil)
			}

			award, err := e.UpdateBadges(context.Background(), cfg, 42, tt.points)
			require.NoError(t, err)

			if tt.badgeID == "" {
				assert.Nil(t, award)
				deps.badges.AssertNotCalled(t, "HasBadge", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NotNil(t, award)
			assert.Equal(t, tt.badgeID, award.BadgeID)
			assert.Equal(t, tt.tier, award.Tier)
			deps.badges.AssertExpectations(t)
		})
	}
}

func TestUpdateBadges_AlreadyHeld(t *testing.T) {
	e, deps := newTestEngine(t, false)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")

	deps.badges.On("HasBadge", mock.Anything, "expert_badge", int64(42)).Return(true, nil)

	award, err := e.UpdateBadges(context.Background(), cfg, 42, 1500)
	require.NoError(t, err)
	assert.Nil(t, award)
	deps.badges.AssertNotCalled(t, "GrantBadge", mock.Anything, mock.Anything)
}

func TestUpdateBadges_RepeatedCallsGrantOnce(t *testing.T) {
	e, deps := newTestEngine(t, false)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")

	deps.badges.On("HasBadge", mock.Anything, "rising_star_badge", int64(42)).Return(false, nil).Once()
	deps.badges.On("GrantBadge", mock.Anything, mock.Anything).Return(true, nil).Once()
	deps.badges.On("HasBadge", mock.Anything, "rising_star_badge", int64(42)).Return(true, nil)

	first, err := e.UpdateBadges(context.Background(), cfg, 42, 150)
	require.NoError(t, err)
	require.NotNil(t, first)

	for i := 0; i < 3; i++ {
		again, err := e.UpdateBadges(context.Background(), cfg, 42, 150)
		require.NoError(t, err)
		assert.Nil(t, again)
	}
	deps.badges.AssertNumberOfCalls(t, "GrantBadge", 1)
}

func TestUpdateBadges_LostRace(t *testing.T) {
	e, deps := newTestEngine(t, false)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")

	deps.badges.On("HasBadge", mock.Anything, "expert_badge", int64(42)).Return(false, nil)
	deps.badges.On("GrantBadge", mock.Anything, mock.Anything).Return(false, nil)

	award, err := e.UpdateBadges(context.Background(), cfg, 42, 1000)
	require.NoError(t, err)
	assert.Nil(t, award)
}

func TestUpdateBadges_GamificationDisabled(t *testing.T) {
	e, deps := newTestEngine(t, false)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	cfg.EnableGamification = false

	award, err := e.UpdateBadges(context.Background(), cfg, 42, 5000)
	require.NoError(t, err)
	assert.Nil(t, award)
	deps.badges.AssertNotCalled(t, "HasBadge", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateBadges_DryRunGrantsNothing(t *testing.T) {
	e, deps := newTestEngine(t, true)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")

	deps.badges.On("HasBadge", mock.Anything, "expert_badge", int64(42)).Return(false, nil)

	award, err := e.UpdateBadges(context.Background(), cfg, 42, 1000)
	require.NoError(t, err)
	assert.Nil(t, award)
	deps.badges.AssertNotCalled(t, "GrantBadge", mock.Anything, mock.Anything)
}

func TestUpdateBadges_CustomRules(t *testing.T) {
	deps := &engineDeps{badges: new(MockBadgeStore)}
	e := New(Options{
		Badges: deps.badges,
		BadgeRules: []models.BadgeRule{
			{Tier: models.BadgeExpert, BadgeID: "gold", MinPoints: 50},
			{Tier: models.BadgeRisingStar, BadgeID: "bronze", MinPoints: 10},
		},
	})
	cfg := models.NewNotificationConfig("Support", 7, "")

	deps.badges.On("HasBadge", mock.Anything, "bronze", int64(1)).Return(false, nil)
	deps.badges.On("GrantBadge", mock.Anything, mock.Anything).Return(true, nil)

	award, err := e.UpdateBadges(context.Background(), cfg, 1, 20)
	require.NoError(t, err)
	require.NotNil(t, award)
	assert.Equal(t, "bronze", award.BadgeID)
}

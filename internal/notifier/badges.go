package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// UpdateBadges grants the highest tier the points qualify for, unless the
// agent already holds it. At most one badge is granted per call and badges
// are never revoked. Returns the award, or nil when nothing was granted.
func (e *Engine) UpdateBadges(ctx context.Context, cfg *models.NotificationConfig, agentID int64, points int) (*models.BadgeAward, error) {
	if !cfg.EnableGamification {
		return nil, nil
	}

	rule, ok := e.tierFor(points)
	if !ok {
		return nil, nil
	}

	has, err := e.badges.HasBadge(ctx, rule.BadgeID, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check badge %s for agent %d: %w", rule.BadgeID, agentID, err)
	}
	if has {
		return nil, nil
	}

	if e.dryRun {
		e.logger.Info("badge_grant_skipped_dry_run",
			slog.Int64("agent_id", agentID),
			slog.String("badge_id", rule.BadgeID),
			slog.Int("points", points),
		)
		return nil, nil
	}

	granted, err := e.badges.GrantBadge(ctx, &models.BadgeGrant{
		BadgeID:   rule.BadgeID,
		Tier:      rule.Tier.Key(),
		UserID:    agentID,
		Points:    points,
		ConfigID:  cfg.ID,
		GrantedAt: e.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant badge %s to agent %d: %w", rule.BadgeID, agentID, err)
	}
	if !granted {
		return nil, nil
	}

	award := &models.BadgeAward{
		AgentID: agentID,
		BadgeID: rule.BadgeID,
		Tier:    rule.Tier,
		Points:  points,
	}

	e.metrics.BadgeGranted(rule.Tier)
	e.logger.Info("badge_granted",
		slog.Int64("config_id", cfg.ID),
		slog.Int64("agent_id", agentID),
		slog.String("badge_id", rule.BadgeID),
		slog.String("tier", rule.Tier.String()),
		slog.Int("points", points),
	)

	return award, nil
}

// tierFor picks the first rule whose threshold the points reach. Rules are
// ordered highest tier first.
func (e *Engine) tierFor(points int) (models.BadgeRule, bool) {
	for _, r := range e.rules {
		if points >= r.MinPoints {
			return r, true
		}
	}
	return models.BadgeRule{}, false
}

package database

import (
	"context"
	"time"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

func (db *DB) HasBadge(ctx context.Context, badgeID string, userID int64) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM badge_grants WHERE badge_id = ? AND user_id = ?)
	`, badgeID, userID)
	return exists, err
}

// GrantBadge stores a grant. It reports false when the user already owns the badge.
func (db *DB) GrantBadge(ctx context.Context, g *models.BadgeGrant) (bool, error) {
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}

	result, err := db.NamedExecContext(ctx, `
		INSERT INTO badge_grants (badge_id, tier, user_id, points, config_id, granted_at)
		VALUES (:badge_id, :tier, :user_id, :points, :config_id, :granted_at)
		ON CONFLICT(badge_id, user_id) DO NOTHING
	`, g)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if id, err := result.LastInsertId(); err == nil {
		g.ID = id
	}
	return true, nil
}

// ListBadges returns the user's badges, oldest first.
func (db *DB) ListBadges(ctx context.Context, userID int64) ([]models.BadgeGrant, error) {
	grants := []models.BadgeGrant{}
	err := db.SelectContext(ctx, &grants, `
		SELECT id, badge_id, tier, user_id, points, config_id, granted_at
		FROM badge_grants
		WHERE user_id = ?
		ORDER BY granted_at, id
	`, userID)
	return grants, err
}

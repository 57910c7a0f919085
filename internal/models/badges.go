package models

import (
	"fmt"
	"time"
)

// BadgeTier is a gamification level. Higher values are better tiers.
type BadgeTier int

const (
	BadgeNone BadgeTier = iota
	BadgeRisingStar
	BadgeProfessional
	BadgeExpert
)

func (t BadgeTier) String() string {
	switch t {
	case BadgeRisingStar:
		return "rising star"
	case BadgeProfessional:
		return "professional"
	case BadgeExpert:
		return "expert"
	default:
		return "none"
	}
}

// Key is the stable identifier used in configuration files and metrics labels.
func (t BadgeTier) Key() string {
	switch t {
	case BadgeRisingStar:
		return "rising_star"
	case BadgeProfessional:
		return "professional"
	case BadgeExpert:
		return "expert"
	default:
		return "none"
	}
}

// MarshalText encodes the tier as its Key, matching badge_grants.tier and metric labels.
func (t BadgeTier) MarshalText() ([]byte, error) {
	return []byte(t.Key()), nil
}

func (t *BadgeTier) UnmarshalText(text []byte) error {
	key := string(text)
	tier := ParseBadgeTier(key)
	if tier == BadgeNone && key != BadgeNone.Key() {
		return fmt.Errorf("unknown badge tier %q", key)
	}
	*t = tier
	return nil
}

func ParseBadgeTier(key string) BadgeTier {
	for _, t := range []BadgeTier{BadgeRisingStar, BadgeProfessional, BadgeExpert} {
		if t.Key() == key {
			return t
		}
	}
	return BadgeNone
}

// BadgeRule maps a tier to the badge identifier granted for it and its point threshold.
type BadgeRule struct {
	Tier      BadgeTier
	BadgeID   string
	MinPoints int
}

// DefaultBadgeRules is the standard tier table, highest tier first.
func DefaultBadgeRules() []BadgeRule {
	return []BadgeRule{
		{Tier: BadgeExpert, BadgeID: "expert_badge", MinPoints: 1000},
		{Tier: BadgeProfessional, BadgeID: "professional_badge", MinPoints: 500},
		{Tier: BadgeRisingStar, BadgeID: "rising_star_badge", MinPoints: 100},
	}
}

// BadgeAward describes a badge granted during a report run.
type BadgeAward struct {
	AgentID   int64     `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	BadgeID   string    `json:"badge_id"`
	Tier      BadgeTier `json:"tier"`
	Points    int       `json:"points"`
}

// BadgeGrant is a persisted badge ownership record.
type BadgeGrant struct {
	ID        int64     `db:"id" json:"id"`
	BadgeID   string    `db:"badge_id" json:"badge_id"`
	Tier      string    `db:"tier" json:"tier"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Points    int       `db:"points" json:"points"`
	ConfigID  int64     `db:"config_id" json:"config_id"`
	GrantedAt time.Time `db:"granted_at" json:"granted_at"`
}

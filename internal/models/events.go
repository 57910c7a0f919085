package models

import "time"

// Event types published after a run.
const (
	EventReportSent   = "report.sent"
	EventBadgeGranted = "badge.granted"
)

// Event is the message body fanned out to downstream consumers.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ConfigID   int64     `json:"config_id"`
	TeamID     int64     `json:"team_id"`
	OccurredAt time.Time `json:"occurred_at"`

	Report *ReportSummary `json:"report,omitempty"`
	Badge  *BadgeAward    `json:"badge,omitempty"`
}

type ReportSummary struct {
	Frequency          Frequency `json:"frequency"`
	Period             string    `json:"period"`
	TotalTickets       int       `json:"total_tickets"`
	SLAPerformance     float64   `json:"sla_performance"`
	AvgSatisfaction    float64   `json:"avg_satisfaction"`
	SLAStatus          string    `json:"sla_status"`
	SatisfactionStatus string    `json:"satisfaction_status"`
	AgentsReported     int       `json:"agents_reported"`
	BadgesGranted      int       `json:"badges_granted"`
}

// Summary condenses the report for events and chat posts.
func (r *Report) Summary() ReportSummary {
	return ReportSummary{
		Frequency:          r.Window.Frequency,
		Period:             r.Date,
		TotalTickets:       r.TeamMetrics.TotalTickets,
		SLAPerformance:     r.TeamMetrics.SLAPerformance,
		AvgSatisfaction:    r.TeamMetrics.AvgSatisfaction,
		SLAStatus:          r.SLAStatus,
		SatisfactionStatus: r.SatisfactionStatus,
		AgentsReported:     len(r.Agents),
		BadgesGranted:      len(r.BadgesGranted),
	}
}

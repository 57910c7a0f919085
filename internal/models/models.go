package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxRating is the top of the customer rating scale (1-5, 0 means unrated).
const MaxRating = 5.0

// PositiveRating is the lowest rating counted as a positive review.
const PositiveRating = 4.0

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent

	// PriorityUnknown marks a stored value outside "0".."3". It belongs to no bucket.
	PriorityUnknown Priority = -1
)

// PriorityLevels lists every priority bucket in ordinal order.
var PriorityLevels = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ParsePriority converts the helpdesk's stored priority ("0".."3") into a Priority.
// Anything unparseable or out of range is PriorityUnknown.
func ParsePriority(s string) Priority {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < int(PriorityLow) || n > int(PriorityUrgent) {
		return PriorityUnknown
	}
	return Priority(n)
}

// SLA status values as stored by the helpdesk.
const (
	SLAReached = "reached"
	SLAFailed  = "failed"
	SLAOngoing = "ongoing"
)

type Ticket struct {
	ID             int64
	Name           string
	Number         string
	TeamID         int64
	AssigneeID     *int64
	StageID        int64
	StageName      string
	StageIsClosing bool
	Priority       Priority
	SLAStatus      string
	RatingAvg      float64
	ResponseTime   float64 // hours
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (t Ticket) SLAReached() bool {
	return t.SLAStatus == SLAReached
}

func (t Ticket) IsRated() bool {
	return t.RatingAvg > 0
}

type Stage struct {
	ID        int64
	Name      string
	IsClosing bool
	Sequence  int
}

type Agent struct {
	ID    int64
	Name  string
	Email string
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q (want daily, weekly or monthly)", s)
	}
	return f, nil
}

// NotificationConfig is the per-team report and gamification setup.
type NotificationConfig struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Active       bool      `db:"active" json:"active"`
	TeamID       int64     `db:"team_id" json:"team_id"`
	ManagerID    int64     `db:"manager_id" json:"manager_id"`
	ManagerEmail string    `db:"manager_email" json:"manager_email"`
	Frequency    Frequency `db:"frequency" json:"frequency"`

	IncludeMetrics         bool `db:"include_metrics" json:"include_metrics"`
	IncludeTeamPerformance bool `db:"include_team_performance" json:"include_team_performance"`
	IncludeIndividualStats bool `db:"include_individual_stats" json:"include_individual_stats"`

	SLATarget            float64 `db:"sla_target" json:"sla_target"`
	ResponseTimeTarget   float64 `db:"response_time_target" json:"response_time_target"`
	ResolutionTimeTarget float64 `db:"resolution_time_target" json:"resolution_time_target"`
	SatisfactionTarget   float64 `db:"satisfaction_target" json:"satisfaction_target"`

	EnableGamification bool `db:"enable_gamification" json:"enable_gamification"`
	PointsPerTicket    int  `db:"points_per_ticket" json:"points_per_ticket"`
	PointsSLAMet       int  `db:"points_sla_met" json:"points_sla_met"`
	PointsSatisfaction int  `db:"points_satisfaction" json:"points_satisfaction"`

	// Rolling counters, written only by report runs.
	LastExecution      *time.Time `db:"last_execution" json:"last_execution,omitempty"`
	TotalNotifications int        `db:"total_notifications" json:"total_notifications"`
	// LastAvgSatisfaction is the average satisfaction of the most recent report,
	// overwritten on every run.
	LastAvgSatisfaction float64 `db:"last_avg_satisfaction" json:"last_avg_satisfaction"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewNotificationConfig returns a config carrying the default targets and point weights.
func NewNotificationConfig(name string, teamID int64, managerEmail string) *NotificationConfig {
	return &NotificationConfig{
		Name:                   name,
		Active:                 true,
		TeamID:                 teamID,
		ManagerEmail:           managerEmail,
		Frequency:              FrequencyDaily,
		IncludeMetrics:         true,
		IncludeTeamPerformance: true,
		IncludeIndividualStats: true,
		SLATarget:              95,
		ResponseTimeTarget:     1,
		ResolutionTimeTarget:   8,
		SatisfactionTarget:     90,
		EnableGamification:     true,
		PointsPerTicket:        10,
		PointsSLAMet:           5,
		PointsSatisfaction:     15,
	}
}

// Window is an inclusive reporting interval.
type Window struct {
	Frequency Frequency
	Start     time.Time
	End       time.Time
}

// Label is the human-readable date of the window used in report subjects.
func (w Window) Label() string {
	switch w.Frequency {
	case FrequencyWeekly:
		return fmt.Sprintf("%s to %s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
	case FrequencyMonthly:
		return w.Start.Format("January 2006")
	default:
		return w.Start.Format("2006-01-02")
	}
}

type PriorityCount struct {
	Priority Priority
	Count    int
}

// PriorityCounts holds one counter per fixed priority bucket.
type PriorityCounts [4]int

// Add counts p in its bucket. Unknown priorities are not counted.
func (c *PriorityCounts) Add(p Priority) {
	if p < PriorityLow || p > PriorityUrgent {
		return
	}
	c[p]++
}

func (c PriorityCounts) Count(p Priority) int {
	if p < PriorityLow || p > PriorityUrgent {
		return 0
	}
	return c[p]
}

func (c PriorityCounts) Buckets() []PriorityCount {
	out := make([]PriorityCount, 0, len(PriorityLevels))
	for _, p := range PriorityLevels {
		out = append(out, PriorityCount{Priority: p, Count: c[p]})
	}
	return out
}

type StageCount struct {
	StageID   int64  `json:"stage_id"`
	StageName string `json:"stage_name"`
	Count     int    `json:"count"`
}

type TeamMetrics struct {
	TotalTickets      int            `json:"total_tickets"`
	SLAPerformance    float64        `json:"sla_performance"`
	AvgSatisfaction   float64        `json:"avg_satisfaction"`
	RatedTickets      int            `json:"rated_tickets"`
	TicketsByPriority PriorityCounts `json:"tickets_by_priority"`
	TicketsByStage    []StageCount   `json:"tickets_by_stage"`
}

// SatisfactionPercent expresses AvgSatisfaction on the 0-100 scale used by targets.
func (m TeamMetrics) SatisfactionPercent() float64 {
	return m.AvgSatisfaction / MaxRating * 100
}

type AgentPerformance struct {
	AgentID         int64   `json:"agent_id"`
	AgentName       string  `json:"agent_name"`
	TotalTickets    int     `json:"total_tickets"`
	ClosedTickets   int     `json:"closed_tickets"`
	SLAPerformance  float64 `json:"sla_performance"`
	AvgResponseTime float64 `json:"avg_response_time"`
	PointsEarned    int     `json:"points_earned"`
}

type TicketActivity struct {
	TicketID   int64     `json:"ticket_id"`
	Name       string    `json:"name"`
	Number     string    `json:"number"`
	Stage      string    `json:"stage"`
	LastUpdate time.Time `json:"last_update"`
	Priority   Priority  `json:"priority"`
}

// Target status strings carried in the report payload.
const (
	StatusTargetMet   = "target met"
	StatusBelowTarget = "below target"
)

func TargetStatus(value, target float64) string {
	if value >= target {
		return StatusTargetMet
	}
	return StatusBelowTarget
}

// Report is the payload handed to the report sender.
type Report struct {
	Config             NotificationConfig `json:"config"`
	Window             Window             `json:"window"`
	Date               string             `json:"date"`
	TeamMetrics        TeamMetrics        `json:"team_metrics"`
	Agents             []AgentPerformance `json:"agent_performances"`
	SLAStatus          string             `json:"sla_status"`
	SatisfactionStatus string             `json:"satisfaction_status"`
	BadgesGranted      []BadgeAward       `json:"badges_granted,omitempty"`
	UpdatedTickets     []TicketActivity   `json:"updated_tickets,omitempty"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

type RunStatus string

const (
	RunSent    RunStatus = "sent"
	RunSkipped RunStatus = "skipped"
	RunFailed  RunStatus = "failed"
	RunDryRun  RunStatus = "dry_run"
)

// Skip reasons recorded with skipped runs.
const (
	SkipNoManagerEmail = "no_manager_email"
	SkipNoTickets      = "no_tickets"
)

// ReportRun is the history row written for every config processed by a run.
type ReportRun struct {
	ID              string    `db:"id" json:"id"`
	ConfigID        int64     `db:"config_id" json:"config_id"`
	TeamID          int64     `db:"team_id" json:"team_id"`
	Frequency       Frequency `db:"frequency" json:"frequency"`
	WindowStart     time.Time `db:"window_start" json:"window_start"`
	WindowEnd       time.Time `db:"window_end" json:"window_end"`
	Status          RunStatus `db:"status" json:"status"`
	SkipReason      string    `db:"skip_reason" json:"skip_reason,omitempty"`
	TotalTickets    int       `db:"total_tickets" json:"total_tickets"`
	SLAPerformance  float64   `db:"sla_performance" json:"sla_performance"`
	AvgSatisfaction float64   `db:"avg_satisfaction" json:"avg_satisfaction"`
	AgentsReported  int       `db:"agents_reported" json:"agents_reported"`
	BadgesGranted   int       `db:"badges_granted" json:"badges_granted"`
	Error           string    `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

type RunStats struct {
	ConfigsChecked int
	ReportsSent    int
	ConfigsSkipped int
	BadgesGranted  int
	Errors         int
	Duration       time.Duration
}

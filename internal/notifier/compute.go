package notifier

import (
	"context"
	"fmt"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// ComputeTeamMetrics aggregates the team's tickets created within the window.
// A nil result with a nil error means the window is empty and there is
// nothing to report.
func (e *Engine) ComputeTeamMetrics(ctx context.Context, cfg *models.NotificationConfig, w models.Window) (*models.TeamMetrics, error) {
	tickets, err := e.tickets.TeamTickets(ctx, cfg.TeamID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get team tickets: %w", err)
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	stages, err := e.tickets.TeamStages(ctx, cfg.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team stages: %w", err)
	}

	m := SummarizeTeam(tickets, stages)
	return &m, nil
}

// SummarizeTeam computes team metrics over an already fetched ticket set.
// Every stage is listed in TicketsByStage, including stages with no tickets.
func SummarizeTeam(tickets []models.Ticket, stages []models.Stage) models.TeamMetrics {
	m := models.TeamMetrics{
		TotalTickets:   len(tickets),
		SLAPerformance: slaPerformance(tickets),
		TicketsByStage: make([]models.StageCount, 0, len(stages)),
	}

	var ratingSum float64
	byStage := make(map[int64]int, len(stages))
	for _, t := range tickets {
		m.TicketsByPriority.Add(t.Priority)
		byStage[t.StageID]++
		if t.IsRated() {
			ratingSum += t.RatingAvg
			m.RatedTickets++
		}
	}
	if m.RatedTickets > 0 {
		m.AvgSatisfaction = ratingSum / float64(m.RatedTickets)
	}

	for _, s := range stages {
		m.TicketsByStage = append(m.TicketsByStage, models.StageCount{
			StageID:   s.ID,
			StageName: s.Name,
			Count:     byStage[s.ID],
		})
	}

	return m
}

// ComputeAgentPerformance aggregates one agent's tickets in the team and window.
// AgentName is left for the caller. A nil result means the agent had no tickets.
func (e *Engine) ComputeAgentPerformance(ctx context.Context, cfg *models.NotificationConfig, agentID int64, w models.Window) (*models.AgentPerformance, error) {
	tickets, err := e.tickets.AgentTickets(ctx, cfg.TeamID, agentID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets for agent %d: %w", agentID, err)
	}
	if len(tickets) == 0 {
		return nil, nil
	}

	perf := &models.AgentPerformance{
		AgentID:        agentID,
		TotalTickets:   len(tickets),
		SLAPerformance: slaPerformance(tickets),
		PointsEarned:   ComputeAgentPoints(cfg, tickets),
	}

	var responseSum float64
	for _, t := range tickets {
		if t.StageIsClosing {
			perf.ClosedTickets++
		}
		responseSum += t.ResponseTime
	}
	perf.AvgResponseTime = responseSum / float64(len(tickets))

	return perf, nil
}

// ComputeAgentPoints scores a ticket set with the config's weights. Every
// ticket earns PointsPerTicket, plus PointsSLAMet when its SLA was reached and
// PointsSatisfaction when it was rated positively.
func ComputeAgentPoints(cfg *models.NotificationConfig, tickets []models.Ticket) int {
	points := 0
	for _, t := range tickets {
		points += nonNegative(cfg.PointsPerTicket)
		if t.SLAReached() {
			points += nonNegative(cfg.PointsSLAMet)
		}
		if t.RatingAvg >= models.PositiveRating {
			points += nonNegative(cfg.PointsSatisfaction)
		}
	}
	return points
}

func slaPerformance(tickets []models.Ticket) float64 {
	if len(tickets) == 0 {
		return 0
	}
	reached := 0
	for _, t := range tickets {
		if t.SLAReached() {
			reached++
		}
	}
	return float64(reached) / float64(len(tickets)) * 100
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

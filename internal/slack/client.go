package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voicetel/helpdesk-reporter/internal/config"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

type Client struct {
	webhookURL    string
	httpClient    *http.Client
	retryAttempts int
	backoff       func(attempt int) time.Duration
}

type Message struct {
	Text string `json:"text"`
}

func NewClient(cfg config.SlackConfig) *Client {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryAttempts: attempts,
		backoff: func(attempt int) time.Duration {
			// Exponential backoff
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

func (c *Client) SendMessage(ctx context.Context, text string) error {
	message := Message{Text: text}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		lastErr = c.post(ctx, payload)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// PostReportSummary posts a short digest of a delivered report.
func (c *Client) PostReportSummary(ctx context.Context, report *models.Report) error {
	return c.SendMessage(ctx, FormatSummary(report))
}

func FormatSummary(report *models.Report) string {
	emoji := "✅"
	if report.SLAStatus != models.StatusTargetMet || report.SatisfactionStatus != models.StatusTargetMet {
		emoji = "⚠️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s report for %s\n", emoji, report.Config.Name, report.Window.Frequency, report.Date)
	fmt.Fprintf(&b, "*Tickets:* %d\n", report.TeamMetrics.TotalTickets)
	fmt.Fprintf(&b, "*SLA:* %.1f%% (%s)\n", report.TeamMetrics.SLAPerformance, report.SLAStatus)
	fmt.Fprintf(&b, "*Satisfaction:* %.2f/5 (%s)\n", report.TeamMetrics.AvgSatisfaction, report.SatisfactionStatus)

	if len(report.Agents) > 0 {
		top := report.Agents[0]
		for _, a := range report.Agents[1:] {
			if a.PointsEarned > top.PointsEarned {
				top = a
			}
		}
		fmt.Fprintf(&b, "*Top agent:* %s with %d points\n", top.AgentName, top.PointsEarned)
	}

	for _, award := range report.BadgesGranted {
		fmt.Fprintf(&b, "🏅 %s earned the %s badge\n", award.AgentName, award.Tier)
	}

	return strings.TrimRight(b.String(), "\n")
}

// TestWebhook sends a connectivity check message.
func TestWebhook(ctx context.Context, cfg config.SlackConfig) error {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return NewClient(cfg).SendMessage(ctx, "🔧 Helpdesk reporter test message - connection successful!")
}

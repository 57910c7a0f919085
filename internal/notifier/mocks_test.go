package notifier

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// ==================== Mock Ticket Source ====================

type MockTicketSource struct {
	mock.Mock
}

func (m *MockTicketSource) TeamTickets(ctx context.Context, teamID int64, from, to time.Time) ([]models.Ticket, error) {
	args := m.Called(ctx, teamID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketSource) AgentTickets(ctx context.Context, teamID, agentID int64, from, to time.Time) ([]models.Ticket, error) {
	args := m.Called(ctx, teamID, agentID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketSource) UpdatedTickets(ctx context.Context, teamID int64, from, to time.Time) ([]models.Ticket, error) {
	args := m.Called(ctx, teamID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketSource) TeamStages(ctx context.Context, teamID int64) ([]models.Stage, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Stage), args.Error(1)
}

func (m *MockTicketSource) TeamMembers(ctx context.Context, teamID int64) ([]models.Agent, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Agent), args.Error(1)
}

// ==================== Mock Stores ====================

type MockConfigStore struct {
	mock.Mock
}

func (m *MockConfigStore) ActiveConfigs(ctx context.Context, freq models.Frequency) ([]models.NotificationConfig, error) {
	args := m.Called(ctx, freq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotificationConfig), args.Error(1)
}

func (m *MockConfigStore) RecordExecution(ctx context.Context, id int64, at time.Time, avgSatisfaction float64) error {
	args := m.Called(ctx, id, at, avgSatisfaction)
	return args.Error(0)
}

type MockBadgeStore struct {
	mock.Mock
}

func (m *MockBadgeStore) HasBadge(ctx context.Context, badgeID string, userID int64) (bool, error) {
	args := m.Called(ctx, badgeID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBadgeStore) GrantBadge(ctx context.Context, g *models.BadgeGrant) (bool, error) {
	args := m.Called(ctx, g)
	return args.Bool(0), args.Error(1)
}

type MockRunRecorder struct {
	mock.Mock
}

func (m *MockRunRecorder) RecordRun(ctx context.Context, run *models.ReportRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// ==================== Mock Outputs ====================

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendReport(ctx context.Context, to string, report *models.Report) error {
	args := m.Called(ctx, to, report)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, events ...models.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

type MockSummaryPoster struct {
	mock.Mock
}

func (m *MockSummaryPoster) PostReportSummary(ctx context.Context, report *models.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

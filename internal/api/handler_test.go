package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voicetel/helpdesk-reporter/internal/database"
	"github.com/voicetel/helpdesk-reporter/internal/metrics"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// ==================== Mocks ====================

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateConfig(ctx context.Context, c *models.NotificationConfig) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockStore) UpdateConfig(ctx context.Context, c *models.NotificationConfig) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockStore) GetConfig(ctx context.Context, id int64) (*models.NotificationConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationConfig), args.Error(1)
}

func (m *MockStore) ConfigByTeam(ctx context.Context, teamID int64) (*models.NotificationConfig, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationConfig), args.Error(1)
}

func (m *MockStore) ListConfigs(ctx context.Context) ([]models.NotificationConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotificationConfig), args.Error(1)
}

func (m *MockStore) DeleteConfig(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) ListRuns(ctx context.Context, configID int64, limit int) ([]models.ReportRun, error) {
	args := m.Called(ctx, configID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReportRun), args.Error(1)
}

func (m *MockStore) ListBadges(ctx context.Context, userID int64) ([]models.BadgeGrant, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BadgeGrant), args.Error(1)
}

func (m *MockStore) GetRunStats(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Preview(ctx context.Context, cfg *models.NotificationConfig) (*models.Report, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *MockEngine) RunScheduled(ctx context.Context, freq models.Frequency) (*models.RunStats, error) {
	args := m.Called(ctx, freq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunStats), args.Error(1)
}

// ==================== Helpers ====================

const testToken = "test-token"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(store *MockStore, engine *MockEngine, m *metrics.Metrics) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(store, engine, m, testToken, logger).SetupRouter()
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", testToken)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ==================== Tests ====================

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(new(MockStore), new(MockEngine), nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ReportSent(models.FrequencyDaily)
	router := newTestRouter(new(MockStore), new(MockEngine), m)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `helpdesk_reporter_reports_sent_total{frequency="daily"} 1`)
}

func TestAdminAuth(t *testing.T) {
	router := newTestRouter(new(MockStore), new(MockEngine), nil)

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/configs", http.NoBody)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, w).Error.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/configs", http.NoBody)
		req.Header.Set("X-Admin-Token", "nope")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid admin token", decodeError(t, w).Error.Message)
	})
}

func TestAdminAuth_DisabledWithoutToken(t *testing.T) {
	store := new(MockStore)
	store.On("ListConfigs", mock.Anything).Return([]models.NotificationConfig{}, nil)
	router := NewHandler(store, new(MockEngine), nil, "", slog.New(slog.NewTextHandler(io.Discard, nil))).SetupRouter()

	req := httptest.NewRequest("GET", "/api/v1/configs", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateConfig_AppliesDefaults(t *testing.T) {
	store := new(MockStore)
	store.On("CreateConfig", mock.Anything, mock.MatchedBy(func(c *models.NotificationConfig) bool {
		return c.Name == "Support" && c.TeamID == 7 &&
			c.SLATarget == 95 && c.PointsPerTicket == 10 &&
			c.Frequency == models.FrequencyWeekly &&
			c.TotalNotifications == 0
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.NotificationConfig).ID = 42
	}).Return(nil)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "POST", "/api/v1/configs", map[string]interface{}{
		"name":                "Support",
		"team_id":             7,
		"manager_email":       "lead@example.com",
		"frequency":           "weekly",
		"total_notifications": 99,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Config models.NotificationConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.Config.ID)
	store.AssertExpectations(t)
}

func TestCreateConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		status   int
		code     string
	}{
		{"duplicate team", database.ErrDuplicateTeam, http.StatusConflict, "TEAM_EXISTS"},
		{"validation", fmt.Errorf("%w: sla_target must be 0-100", models.ErrValidation), http.StatusBadRequest, "INVALID_REQUEST"},
		{"database", errors.New("disk I/O error"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			store.On("CreateConfig", mock.Anything, mock.Anything).Return(tt.storeErr)
			router := newTestRouter(store, new(MockEngine), nil)

			w := doRequest(router, "POST", "/api/v1/configs", map[string]interface{}{"name": "Support", "team_id": 7})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error.Code)
		})
	}
}

func TestCreateConfig_MalformedBody(t *testing.T) {
	router := newTestRouter(new(MockStore), new(MockEngine), nil)

	req := httptest.NewRequest("POST", "/api/v1/configs", strings.NewReader("{not json"))
	req.Header.Set("X-Admin-Token", testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConfig(t *testing.T) {
	store := new(MockStore)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	cfg.ID = 3
	store.On("GetConfig", mock.Anything, int64(3)).Return(cfg, nil)
	store.On("GetConfig", mock.Anything, int64(4)).Return(nil, database.ErrConfigNotFound)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "GET", "/api/v1/configs/3", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"team_id":7`)

	w = doRequest(router, "GET", "/api/v1/configs/4", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(router, "GET", "/api/v1/configs/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateConfig_MergesBody(t *testing.T) {
	store := new(MockStore)
	stored := models.NewNotificationConfig("Support", 7, "lead@example.com")
	stored.ID = 3
	store.On("GetConfig", mock.Anything, int64(3)).Return(stored, nil)
	store.On("UpdateConfig", mock.Anything, mock.MatchedBy(func(c *models.NotificationConfig) bool {
		return c.ID == 3 && c.SLATarget == 80 && c.Name == "Support" && c.ManagerEmail == "lead@example.com"
	})).Return(nil)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "PUT", "/api/v1/configs/3", map[string]interface{}{"id": 99, "sla_target": 80})

	assert.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
}

func TestDeleteConfig(t *testing.T) {
	store := new(MockStore)
	store.On("DeleteConfig", mock.Anything, int64(3)).Return(nil)
	store.On("DeleteConfig", mock.Anything, int64(4)).Return(database.ErrConfigNotFound)
	router := newTestRouter(store, new(MockEngine), nil)

	assert.Equal(t, http.StatusNoContent, doRequest(router, "DELETE", "/api/v1/configs/3", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, "DELETE", "/api/v1/configs/4", nil).Code)
}

func TestTeamConfig(t *testing.T) {
	store := new(MockStore)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	store.On("ConfigByTeam", mock.Anything, int64(7)).Return(cfg, nil)
	store.On("ConfigByTeam", mock.Anything, int64(8)).Return(nil, database.ErrConfigNotFound)
	router := newTestRouter(store, new(MockEngine), nil)

	assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/api/v1/teams/7/config", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(router, "GET", "/api/v1/teams/8/config", nil).Code)
}

func TestPreviewConfig(t *testing.T) {
	store := new(MockStore)
	engine := new(MockEngine)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	cfg.ID = 3
	store.On("GetConfig", mock.Anything, int64(3)).Return(cfg, nil)
	engine.On("Preview", mock.Anything, mock.MatchedBy(func(c *models.NotificationConfig) bool {
		return c.Frequency == models.FrequencyMonthly
	})).Return(&models.Report{Date: "2026-09", TeamMetrics: models.TeamMetrics{TotalTickets: 12}}, nil)
	router := newTestRouter(store, engine, nil)

	w := doRequest(router, "GET", "/api/v1/configs/3/preview?frequency=monthly", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_tickets":12`)
	engine.AssertExpectations(t)
}

func TestPreviewConfig_EmptyWindow(t *testing.T) {
	store := new(MockStore)
	engine := new(MockEngine)
	cfg := models.NewNotificationConfig("Support", 7, "lead@example.com")
	store.On("GetConfig", mock.Anything, int64(3)).Return(cfg, nil)
	engine.On("Preview", mock.Anything, mock.Anything).Return(nil, nil)
	router := newTestRouter(store, engine, nil)

	w := doRequest(router, "GET", "/api/v1/configs/3/preview", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no tickets in window")
}

func TestPreviewConfig_BadFrequency(t *testing.T) {
	store := new(MockStore)
	store.On("GetConfig", mock.Anything, int64(3)).Return(models.NewNotificationConfig("Support", 7, ""), nil)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "GET", "/api/v1/configs/3/preview?frequency=hourly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRuns(t *testing.T) {
	store := new(MockStore)
	store.On("ListRuns", mock.Anything, int64(3), 5).Return([]models.ReportRun{{ID: "r1", Status: models.RunSent}}, nil)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "GET", "/api/v1/configs/3/runs?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"sent"`)

	w = doRequest(router, "GET", "/api/v1/configs/3/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerRun(t *testing.T) {
	engine := new(MockEngine)
	engine.On("RunScheduled", mock.Anything, models.FrequencyWeekly).
		Return(&models.RunStats{ConfigsChecked: 2, ReportsSent: 1, ConfigsSkipped: 1}, nil)
	router := newTestRouter(new(MockStore), engine, nil)

	w := doRequest(router, "POST", "/api/v1/runs/weekly", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["reports_sent"])
	assert.Equal(t, "weekly", resp["frequency"])
}

func TestTriggerRun_Errors(t *testing.T) {
	engine := new(MockEngine)
	engine.On("RunScheduled", mock.Anything, models.FrequencyDaily).
		Return(&models.RunStats{}, errors.New("config 1 (team 7): smtp send: timeout"))
	router := newTestRouter(new(MockStore), engine, nil)

	w := doRequest(router, "POST", "/api/v1/runs/daily", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "RUN_FAILED", decodeError(t, w).Error.Code)

	w = doRequest(router, "POST", "/api/v1/runs/hourly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserBadges(t *testing.T) {
	store := new(MockStore)
	store.On("ListBadges", mock.Anything, int64(100)).Return([]models.BadgeGrant{
		{BadgeID: "rising_star_badge", Tier: "rising_star", UserID: 100, Points: 140},
	}, nil)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "GET", "/api/v1/badges/100", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"badge_id":"rising_star_badge"`)
}

func TestGetStatistics(t *testing.T) {
	store := new(MockStore)
	store.On("GetRunStats", mock.Anything).Return(map[string]interface{}{"total_runs": 4}, nil)
	router := newTestRouter(store, new(MockEngine), nil)

	w := doRequest(router, "GET", "/api/v1/stats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_runs":4`)
}

func TestRequestsAreCounted(t *testing.T) {
	m := metrics.New()
	store := new(MockStore)
	store.On("GetRunStats", mock.Anything).Return(map[string]interface{}{}, nil)
	router := newTestRouter(store, new(MockEngine), m)

	doRequest(router, "GET", "/api/v1/stats", nil)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `helpdesk_reporter_http_requests_total{route="/api/v1/stats",status="200"} 1`)
}

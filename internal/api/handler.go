package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voicetel/helpdesk-reporter/internal/database"
	"github.com/voicetel/helpdesk-reporter/internal/metrics"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// Store is the slice of the local database the API manages.
type Store interface {
	CreateConfig(ctx context.Context, c *models.NotificationConfig) error
	UpdateConfig(ctx context.Context, c *models.NotificationConfig) error
	GetConfig(ctx context.Context, id int64) (*models.NotificationConfig, error)
	ConfigByTeam(ctx context.Context, teamID int64) (*models.NotificationConfig, error)
	ListConfigs(ctx context.Context) ([]models.NotificationConfig, error)
	DeleteConfig(ctx context.Context, id int64) error
	ListRuns(ctx context.Context, configID int64, limit int) ([]models.ReportRun, error)
	ListBadges(ctx context.Context, userID int64) ([]models.BadgeGrant, error)
	GetRunStats(ctx context.Context) (map[string]interface{}, error)
}

// Engine builds and runs reports.
type Engine interface {
	Preview(ctx context.Context, cfg *models.NotificationConfig) (*models.Report, error)
	RunScheduled(ctx context.Context, freq models.Frequency) (*models.RunStats, error)
}

type Handler struct {
	store      Store
	engine     Engine
	metrics    *metrics.Metrics
	adminToken string
	logger     *slog.Logger
	timeout    time.Duration
}

func NewHandler(store Store, engine Engine, m *metrics.Metrics, adminToken string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      store,
		engine:     engine,
		metrics:    m,
		adminToken: adminToken,
		logger:     logger.With(slog.String("component", "api")),
		timeout:    10 * time.Second,
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *Handler) sendError(c *gin.Context, statusCode int, code, message string) {
	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "request_error",
		slog.String("path", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.Int("status", statusCode),
		slog.String("error_code", code),
		slog.String("message", message),
	)

	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	c.JSON(statusCode, resp)
}

// sendStoreError maps database errors onto HTTP statuses.
func (h *Handler) sendStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrConfigNotFound):
		h.sendError(c, http.StatusNotFound, "NOT_FOUND", "notification config not found")
	case errors.Is(err, database.ErrDuplicateTeam):
		h.sendError(c, http.StatusConflict, "TEAM_EXISTS", "team already has a notification config")
	case errors.Is(err, models.ErrValidation):
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		h.sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid "+name)
		return 0, false
	}
	return id, true
}

// ListConfigs handles GET /api/v1/configs.
func (h *Handler) ListConfigs(c *gin.Context) {
	configs, err := h.store.ListConfigs(c.Request.Context())
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

// CreateConfig handles POST /api/v1/configs. Omitted fields take the defaults.
func (h *Handler) CreateConfig(c *gin.Context) {
	cfg := models.NewNotificationConfig("", 0, "")
	if err := c.ShouldBindJSON(cfg); err != nil {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	// counters belong to report runs
	cfg.ID = 0
	cfg.LastExecution = nil
	cfg.TotalNotifications = 0
	cfg.LastAvgSatisfaction = 0

	if err := h.store.CreateConfig(c.Request.Context(), cfg); err != nil {
		h.sendStoreError(c, err)
		return
	}

	h.logger.Info("config_created",
		slog.Int64("config_id", cfg.ID),
		slog.Int64("team_id", cfg.TeamID),
		slog.String("frequency", string(cfg.Frequency)),
	)
	c.JSON(http.StatusCreated, gin.H{"config": cfg})
}

// GetConfig handles GET /api/v1/configs/:id.
func (h *Handler) GetConfig(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	cfg, err := h.store.GetConfig(c.Request.Context(), id)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// UpdateConfig handles PUT /api/v1/configs/:id. The body is merged over the
// stored config; counters are never written here.
func (h *Handler) UpdateConfig(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	cfg, err := h.store.GetConfig(c.Request.Context(), id)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	if err := c.ShouldBindJSON(cfg); err != nil {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cfg.ID = id

	if err := h.store.UpdateConfig(c.Request.Context(), cfg); err != nil {
		h.sendStoreError(c, err)
		return
	}

	h.logger.Info("config_updated", slog.Int64("config_id", id), slog.Int64("team_id", cfg.TeamID))
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// DeleteConfig handles DELETE /api/v1/configs/:id.
func (h *Handler) DeleteConfig(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteConfig(c.Request.Context(), id); err != nil {
		h.sendStoreError(c, err)
		return
	}

	h.logger.Info("config_deleted", slog.Int64("config_id", id))
	c.Status(http.StatusNoContent)
}

// TeamConfig handles GET /api/v1/teams/:team_id/config.
func (h *Handler) TeamConfig(c *gin.Context) {
	teamID, ok := h.idParam(c, "team_id")
	if !ok {
		return
	}

	cfg, err := h.store.ConfigByTeam(c.Request.Context(), teamID)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// PreviewConfig handles GET /api/v1/configs/:id/preview?frequency=...
// It never sends, grants badges or updates counters.
func (h *Handler) PreviewConfig(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	cfg, err := h.store.GetConfig(c.Request.Context(), id)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}

	if q := c.Query("frequency"); q != "" {
		freq, err := models.ParseFrequency(q)
		if err != nil {
			h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		cfg.Frequency = freq
	}

	report, err := h.engine.Preview(c.Request.Context(), cfg)
	if err != nil {
		h.sendError(c, http.StatusBadGateway, "HELPDESK_ERROR", err.Error())
		return
	}
	if report == nil {
		c.JSON(http.StatusOK, gin.H{"report": nil, "message": "no tickets in window"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ListRuns handles GET /api/v1/configs/:id/runs?limit=...
func (h *Handler) ListRuns(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	limit := 50
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > 1000 {
			h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be 1-1000")
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(c.Request.Context(), id, limit)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// TriggerRun handles POST /api/v1/runs/:frequency and runs synchronously.
func (h *Handler) TriggerRun(c *gin.Context) {
	freq, err := models.ParseFrequency(c.Param("frequency"))
	if err != nil {
		h.sendError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	stats, err := h.engine.RunScheduled(c.Request.Context(), freq)
	if err != nil {
		h.sendError(c, http.StatusInternalServerError, "RUN_FAILED", err.Error())
		return
	}

	h.logger.Info("manual_run_completed",
		slog.String("frequency", string(freq)),
		slog.Int("reports_sent", stats.ReportsSent),
	)
	c.JSON(http.StatusOK, gin.H{
		"frequency":       freq,
		"configs_checked": stats.ConfigsChecked,
		"reports_sent":    stats.ReportsSent,
		"configs_skipped": stats.ConfigsSkipped,
		"badges_granted":  stats.BadgesGranted,
		"duration":        stats.Duration.String(),
	})
}

// UserBadges handles GET /api/v1/badges/:user_id.
func (h *Handler) UserBadges(c *gin.Context) {
	userID, ok := h.idParam(c, "user_id")
	if !ok {
		return
	}

	badges, err := h.store.ListBadges(c.Request.Context(), userID)
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "badges": badges})
}

// GetStatistics handles GET /api/v1/stats.
func (h *Handler) GetStatistics(c *gin.Context) {
	stats, err := h.store.GetRunStats(c.Request.Context())
	if err != nil {
		h.sendStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SetupRouter wires the admin routes.
func (h *Handler) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger, h.metrics))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	v1 := r.Group("/api/v1", AdminAuth(h.adminToken))

	// Manual runs can outlive the request timeout.
	v1.POST("/runs/:frequency", h.TriggerRun)

	bounded := v1.Group("", Timeout(h.timeout))

	// Configs
	bounded.GET("/configs", h.ListConfigs)
	bounded.POST("/configs", h.CreateConfig)
	bounded.GET("/configs/:id", h.GetConfig)
	bounded.PUT("/configs/:id", h.UpdateConfig)
	bounded.DELETE("/configs/:id", h.DeleteConfig)
	bounded.GET("/configs/:id/preview", h.PreviewConfig)
	bounded.GET("/configs/:id/runs", h.ListRuns)
	bounded.GET("/teams/:team_id/config", h.TeamConfig)

	// Gamification
	bounded.GET("/badges/:user_id", h.UserBadges)

	// Stats
	bounded.GET("/stats", h.GetStatistics)

	return r
}

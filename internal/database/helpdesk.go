package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/voicetel/helpdesk-reporter/internal/config"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// Helpdesk reads tickets, stages and team members from the helpdesk database.
// It never writes. Queries are written with '?' and rebound for the driver.
type Helpdesk struct {
	db      *sqlx.DB
	timeout time.Duration
}

func ConnectHelpdesk(cfg config.HelpdeskConfig) (*Helpdesk, error) {
	dsn, err := driverDSN(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewHelpdesk(db, cfg.Timeout), nil
}

// driverDSN forces the MySQL options ticket scanning depends on: DATETIME
// columns must arrive as time.Time, in UTC like the window bounds.
func driverDSN(driver, dsn string) (string, error) {
	if driver != "mysql" {
		return dsn, nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC

	return parsed.FormatDSN(), nil
}

// NewHelpdesk wraps an open connection. A zero timeout disables per-query deadlines.
func NewHelpdesk(db *sqlx.DB, timeout time.Duration) *Helpdesk {
	return &Helpdesk{db: db, timeout: timeout}
}

func (h *Helpdesk) Close() error {
	return h.db.Close()
}

func (h *Helpdesk) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func (h *Helpdesk) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, h.timeout)
}

const ticketSelect = `
	SELECT
		t.id,
		COALESCE(t.name, '') AS name,
		COALESCE(t.number, '') AS number,
		t.team_id,
		t.user_id,
		COALESCE(t.stage_id, 0) AS stage_id,
		COALESCE(s.name, '') AS stage_name,
		COALESCE(s.is_close, FALSE) AS stage_is_close,
		t.priority,
		t.sla_status,
		t.rating_avg,
		t.response_time,
		t.create_date,
		t.write_date
	FROM helpdesk_ticket t
	LEFT JOIN helpdesk_stage s ON s.id = t.stage_id
`

type ticketRow struct {
	ID           int64           `db:"id"`
	Name         string          `db:"name"`
	Number       string          `db:"number"`
	TeamID       int64           `db:"team_id"`
	UserID       sql.NullInt64   `db:"user_id"`
	StageID      int64           `db:"stage_id"`
	StageName    string          `db:"stage_name"`
	StageIsClose bool            `db:"stage_is_close"`
	Priority     sql.NullString  `db:"priority"`
	SLAStatus    sql.NullString  `db:"sla_status"`
	RatingAvg    sql.NullFloat64 `db:"rating_avg"`
	ResponseTime sql.NullFloat64 `db:"response_time"`
	CreateDate   time.Time       `db:"create_date"`
	WriteDate    sql.NullTime    `db:"write_date"`
}

func (r ticketRow) toTicket() models.Ticket {
	t := models.Ticket{
		ID:             r.ID,
		Name:           r.Name,
		Number:         r.Number,
		TeamID:         r.TeamID,
		StageID:        r.StageID,
		StageName:      r.StageName,
		StageIsClosing: r.StageIsClose,
		Priority:       models.ParsePriority(r.Priority.String),
		SLAStatus:      r.SLAStatus.String,
		RatingAvg:      r.RatingAvg.Float64,
		ResponseTime:   r.ResponseTime.Float64,
		CreatedAt:      r.CreateDate,
		UpdatedAt:      r.CreateDate,
	}
	if r.UserID.Valid {
		id := r.UserID.Int64
		t.AssigneeID = &id
	}
	if r.WriteDate.Valid {
		t.UpdatedAt = r.WriteDate.Time
	}
	return t
}

func (h *Helpdesk) selectTickets(ctx context.Context, query string, args ...interface{}) ([]models.Ticket, error) {
	ctx, cancel := h.queryContext(ctx)
	defer cancel()

	var rows []ticketRow
	if err := h.db.SelectContext(ctx, &rows, h.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, r.toTicket())
	}
	return tickets, nil
}

// TeamTickets returns the team's tickets created within [from, to], both inclusive.
func (h *Helpdesk) TeamTickets(ctx context.Context, teamID int64, from, to time.Time) ([]models.Ticket, error) {
	query := ticketSelect + `
		WHERE t.team_id = ?
			AND t.create_date >= ?
			AND t.create_date <= ?
		ORDER BY t.create_date ASC, t.id ASC
	`
	return h.selectTickets(ctx, query, teamID, from.UTC(), to.UTC())
}

// AgentTickets returns the tickets of a team assigned to one agent and created within [from, to].
func (h *Helpdesk) AgentTickets(ctx context.Context, teamID, agentID int64, from, to time.Time) ([]models.Ticket, error) {
	query := ticketSelect + `
		WHERE t.team_id = ?
			AND t.user_id = ?
			AND t.create_date >= ?
			AND t.create_date <= ?
		ORDER BY t.create_date ASC, t.id ASC
	`
	return h.selectTickets(ctx, query, teamID, agentID, from.UTC(), to.UTC())
}

// UpdatedTickets returns the team's tickets last written within [from, to], most recent first.
func (h *Helpdesk) UpdatedTickets(ctx context.Context, teamID int64, from, to time.Time) ([]models.Ticket, error) {
	query := ticketSelect + `
		WHERE t.team_id = ?
			AND t.write_date >= ?
			AND t.write_date <= ?
		ORDER BY t.write_date DESC, t.id DESC
	`
	return h.selectTickets(ctx, query, teamID, from.UTC(), to.UTC())
}

// TeamStages returns every stage attached to the team in workflow order.
func (h *Helpdesk) TeamStages(ctx context.Context, teamID int64) ([]models.Stage, error) {
	ctx, cancel := h.queryContext(ctx)
	defer cancel()

	query := `
		SELECT s.id, s.name, s.is_close, s.sequence
		FROM helpdesk_stage s
		JOIN helpdesk_team_stage_rel r ON r.stage_id = s.id
		WHERE r.team_id = ?
		ORDER BY s.sequence ASC, s.id ASC
	`

	var rows []struct {
		ID       int64  `db:"id"`
		Name     string `db:"name"`
		IsClose  bool   `db:"is_close"`
		Sequence int    `db:"sequence"`
	}
	if err := h.db.SelectContext(ctx, &rows, h.db.Rebind(query), teamID); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	stages := make([]models.Stage, 0, len(rows))
	for _, r := range rows {
		stages = append(stages, models.Stage{ID: r.ID, Name: r.Name, IsClosing: r.IsClose, Sequence: r.Sequence})
	}
	return stages, nil
}

// TeamMembers returns the active users that belong to the team.
func (h *Helpdesk) TeamMembers(ctx context.Context, teamID int64) ([]models.Agent, error) {
	ctx, cancel := h.queryContext(ctx)
	defer cancel()

	query := `
		SELECT
			u.id,
			COALESCE(p.name, u.login) AS name,
			COALESCE(p.email, '') AS email
		FROM helpdesk_team_member_rel r
		JOIN res_users u ON u.id = r.user_id
		LEFT JOIN res_partner p ON p.id = u.partner_id
		WHERE r.team_id = ?
			AND u.active = TRUE
		ORDER BY name ASC, u.id ASC
	`

	var agents []models.Agent
	rows, err := h.db.QueryxContext(ctx, h.db.Rebind(query), teamID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Email); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		agents = append(agents, a)
	}

	return agents, rows.Err()
}

package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

// EnvPrefix is prepended to environment variables that override secrets.
const EnvPrefix = "HDR"

type Config struct {
	// SQLite
	DBPath string `mapstructure:"db_path"`

	Helpdesk HelpdeskConfig `mapstructure:"helpdesk"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Badges   BadgeConfig    `mapstructure:"badges"`
	HTTP     HTTPConfig     `mapstructure:"http"`

	// Cleanup
	RetentionDays int  `mapstructure:"retention_days"`
	AutoVacuum    bool `mapstructure:"auto_vacuum"`

	// Operational
	Frequency string `mapstructure:"frequency"`
	DryRun    bool   `mapstructure:"dry_run"`
	Verbose   bool   `mapstructure:"verbose"`
	LogFormat string `mapstructure:"log_format"`
	Stats     bool   `mapstructure:"stats"`

	// Modes
	ShowVersion      bool  `mapstructure:"-"`
	CheckConnections bool  `mapstructure:"-"`
	InitDB           bool  `mapstructure:"-"`
	StatsOnly        bool  `mapstructure:"-"`
	Cleanup          bool  `mapstructure:"-"`
	Daemon           bool  `mapstructure:"-"`
	PreviewTeam      int64 `mapstructure:"-"`
}

type HelpdeskConfig struct {
	Driver  string        `mapstructure:"driver"` // postgres or mysql
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
	URL     string        `mapstructure:"url"` // base URL for ticket links
}

type SMTPConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	From          string        `mapstructure:"from"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type SlackConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ScheduleConfig struct {
	Timezone string `mapstructure:"timezone"`
	Daily    string `mapstructure:"daily"`
	Weekly   string `mapstructure:"weekly"`
	Monthly  string `mapstructure:"monthly"`
}

type BadgeLevel struct {
	ID     string `mapstructure:"id"`
	Points int    `mapstructure:"points"`
}

// BadgeConfig is the tier -> badge identifier table.
type BadgeConfig struct {
	Expert       BadgeLevel `mapstructure:"expert"`
	Professional BadgeLevel `mapstructure:"professional"`
	RisingStar   BadgeLevel `mapstructure:"rising_star"`
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"`
}

// Rules returns the badge table ordered from the highest tier down.
func (b BadgeConfig) Rules() []models.BadgeRule {
	return []models.BadgeRule{
		{Tier: models.BadgeExpert, BadgeID: b.Expert.ID, MinPoints: b.Expert.Points},
		{Tier: models.BadgeProfessional, BadgeID: b.Professional.ID, MinPoints: b.Professional.Points},
		{Tier: models.BadgeRisingStar, BadgeID: b.RisingStar.ID, MinPoints: b.RisingStar.Points},
	}
}

func ParseFlags() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// ParseArgs builds a Config from command line arguments, an optional config file
// and HDR_* environment overrides, in that order of increasing precedence.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("helpdesk-reporter", flag.ContinueOnError)

	configFile := fs.String("config-file", "", "Path to YAML, JSON or TOML configuration file")

	// SQLite flags
	fs.StringVar(&cfg.DBPath, "db-path", "./helpdesk-reporter.db", "Path to SQLite database")

	// Helpdesk flags
	fs.StringVar(&cfg.Helpdesk.Driver, "helpdesk-driver", "postgres", "Helpdesk database driver (postgres or mysql)")
	fs.StringVar(&cfg.Helpdesk.DSN, "helpdesk-dsn", "", "Helpdesk database DSN (required)")
	fs.DurationVar(&cfg.Helpdesk.Timeout, "helpdesk-timeout", 30*time.Second, "Helpdesk query timeout")
	fs.StringVar(&cfg.Helpdesk.URL, "helpdesk-url", "", "Helpdesk base URL for ticket links")

	// SMTP flags
	fs.StringVar(&cfg.SMTP.Host, "smtp-host", "", "SMTP server host")
	fs.IntVar(&cfg.SMTP.Port, "smtp-port", 587, "SMTP server port")
	fs.StringVar(&cfg.SMTP.Username, "smtp-username", "", "SMTP username")
	fs.StringVar(&cfg.SMTP.From, "smtp-from", "", "Sender address for reports")
	fs.StringVar(&cfg.SMTP.SubjectPrefix, "smtp-subject-prefix", "[Helpdesk]", "Prefix for report subjects")
	fs.DurationVar(&cfg.SMTP.Timeout, "smtp-timeout", 30*time.Second, "SMTP dial timeout")

	// Slack flags
	fs.StringVar(&cfg.Slack.WebhookURL, "slack-webhook", "", "Slack webhook URL for report summaries (optional)")
	fs.DurationVar(&cfg.Slack.Timeout, "slack-timeout", 10*time.Second, "Slack request timeout")
	fs.IntVar(&cfg.Slack.RetryAttempts, "slack-retry-attempts", 3, "Slack retry attempts")

	// Kafka flags
	kafkaBrokers := fs.String("kafka-brokers", "", "Comma separated Kafka brokers for gamification events (optional)")
	fs.StringVar(&cfg.Kafka.Topic, "kafka-topic", "helpdesk.gamification", "Kafka topic for gamification events")

	// Schedule flags
	fs.StringVar(&cfg.Schedule.Timezone, "timezone", "Local", "Timezone used for report windows and schedules")
	fs.StringVar(&cfg.Schedule.Daily, "schedule-daily", "0 0 6 * * *", "Cron spec (with seconds) for daily reports")
	fs.StringVar(&cfg.Schedule.Weekly, "schedule-weekly", "0 0 6 * * 1", "Cron spec (with seconds) for weekly reports")
	fs.StringVar(&cfg.Schedule.Monthly, "schedule-monthly", "0 0 6 1 * *", "Cron spec (with seconds) for monthly reports")

	// Badge flags
	defaults := models.DefaultBadgeRules()
	fs.StringVar(&cfg.Badges.Expert.ID, "badge-expert-id", defaults[0].BadgeID, "Badge identifier for the expert tier")
	fs.IntVar(&cfg.Badges.Expert.Points, "badge-expert-points", defaults[0].MinPoints, "Points required for the expert tier")
	fs.StringVar(&cfg.Badges.Professional.ID, "badge-professional-id", defaults[1].BadgeID, "Badge identifier for the professional tier")
	fs.IntVar(&cfg.Badges.Professional.Points, "badge-professional-points", defaults[1].MinPoints, "Points required for the professional tier")
	fs.StringVar(&cfg.Badges.RisingStar.ID, "badge-rising-star-id", defaults[2].BadgeID, "Badge identifier for the rising star tier")
	fs.IntVar(&cfg.Badges.RisingStar.Points, "badge-rising-star-points", defaults[2].MinPoints, "Points required for the rising star tier")

	// HTTP flags
	fs.StringVar(&cfg.HTTP.Addr, "http-addr", ":8080", "Listen address for the admin API in daemon mode")

	// Cleanup flags
	fs.IntVar(&cfg.RetentionDays, "retention-days", 90, "Days to retain report run history")
	fs.BoolVar(&cfg.AutoVacuum, "auto-vacuum", false, "Automatically vacuum database after cleanup")

	// Operational flags
	fs.StringVar(&cfg.Frequency, "frequency", string(models.FrequencyDaily), "Report frequency to run (daily, weekly or monthly)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Compute reports but don't send, grant badges or update counters")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "Log format (text or json)")
	fs.BoolVar(&cfg.Stats, "stats", false, "Print statistics at end")

	// Modes
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")
	fs.BoolVar(&cfg.CheckConnections, "check-connections", false, "Test connections and exit")
	fs.BoolVar(&cfg.InitDB, "init-db", false, "Apply database migrations and exit")
	fs.BoolVar(&cfg.StatsOnly, "stats-only", false, "Print statistics and exit")
	fs.BoolVar(&cfg.Cleanup, "cleanup", false, "Clean up old run history and exit")
	fs.BoolVar(&cfg.Daemon, "daemon", false, "Run the scheduler and admin API until interrupted")
	fs.Int64Var(&cfg.PreviewTeam, "preview-team", 0, "Render the report for a team's config to stdout and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *kafkaBrokers != "" {
		cfg.Kafka.Brokers = splitList(*kafkaBrokers)
	}

	if *configFile != "" {
		if err := cfg.LoadFromFile(*configFile); err != nil {
			return nil, err
		}
	}

	cfg.LoadFromEnv()

	return cfg, nil
}

// LoadFromFile overlays the values present in filename on top of cfg.
// Keys missing from the file keep their current (flag) values.
func (c *Config) LoadFromFile(filename string) error {
	v := viper.New()
	v.SetConfigFile(filename)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv applies secrets from HDR_* environment variables.
func (c *Config) LoadFromEnv() {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if s := v.GetString("helpdesk_dsn"); s != "" {
		c.Helpdesk.DSN = s
	}
	if s := v.GetString("smtp_password"); s != "" {
		c.SMTP.Password = s
	}
	if s := v.GetString("slack_webhook"); s != "" {
		c.Slack.WebhookURL = s
	}
	if s := v.GetString("api_token"); s != "" {
		c.HTTP.AdminToken = s
	}
}

// needsHelpdesk reports whether the selected mode reads from the helpdesk database.
func (c *Config) needsHelpdesk() bool {
	return !c.InitDB && !c.StatsOnly && !c.Cleanup
}

// needsSMTP reports whether the selected mode may send email.
func (c *Config) needsSMTP() bool {
	return c.needsHelpdesk() && !c.DryRun && !c.CheckConnections && c.PreviewTeam == 0
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("--db-path is required")
	}

	if c.needsHelpdesk() {
		if c.Helpdesk.DSN == "" {
			return fmt.Errorf("--helpdesk-dsn is required")
		}
		if err := c.validateDSN(); err != nil {
			return fmt.Errorf("invalid DSN: %w", err)
		}
	}

	if c.needsSMTP() {
		if c.SMTP.Host == "" {
			return fmt.Errorf("--smtp-host is required")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("--smtp-from is required")
		}
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("--smtp-port must be 0-65535")
	}

	if _, err := models.ParseFrequency(c.Frequency); err != nil {
		return fmt.Errorf("--frequency: %w", err)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("--timezone: %w", err)
	}

	if err := c.validateBadges(); err != nil {
		return err
	}

	if c.Daemon && c.HTTP.Addr == "" {
		return fmt.Errorf("--http-addr is required in daemon mode")
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("--retention-days cannot be negative")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("--log-format must be text or json")
	}

	return nil
}

// validateDSN performs basic validation on the DSN for the configured driver
func (c *Config) validateDSN() error {
	dsn := c.Helpdesk.DSN

	switch c.Helpdesk.Driver {
	case "mysql":
		if strings.HasPrefix(dsn, "tcp://") {
			return fmt.Errorf("DSN should not include 'tcp://' scheme, use format: 'user:password@tcp(host:port)/database'")
		}
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return fmt.Errorf("DSN must be in format 'user:password@tcp(host:port)/database?options': %w", err)
		}
	case "postgres":
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if _, err := url.Parse(dsn); err != nil {
				return fmt.Errorf("malformed postgres URL: %w", err)
			}
			return nil
		}
		if !strings.Contains(dsn, "=") {
			return fmt.Errorf("DSN must be a postgres:// URL or 'host=... dbname=...' keyword string")
		}
	default:
		return fmt.Errorf("unsupported helpdesk driver %q (want postgres or mysql)", c.Helpdesk.Driver)
	}

	return nil
}

func (c *Config) validateBadges() error {
	rules := c.Badges.Rules()
	for _, r := range rules {
		if strings.TrimSpace(r.BadgeID) == "" {
			return fmt.Errorf("badge id for tier %q cannot be empty", r.Tier)
		}
		if r.MinPoints <= 0 {
			return fmt.Errorf("badge threshold for tier %q must be positive", r.Tier)
		}
	}
	for i := 1; i < len(rules); i++ {
		if rules[i].MinPoints >= rules[i-1].MinPoints {
			return fmt.Errorf("badge threshold for %q must be lower than %q", rules[i].Tier, rules[i-1].Tier)
		}
	}
	return nil
}

// Location resolves the configured timezone; empty or "Local" is the server zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Schedule.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Schedule.Timezone)
}

// HelpdeskTarget returns connection details safe for logging (no password).
func (c *Config) HelpdeskTarget() map[string]string {
	info := map[string]string{"driver": c.Helpdesk.Driver}

	switch c.Helpdesk.Driver {
	case "mysql":
		parsed, err := mysql.ParseDSN(c.Helpdesk.DSN)
		if err != nil {
			return info
		}
		info["user"] = parsed.User
		info["host_port"] = parsed.Addr
		info["database"] = parsed.DBName
	case "postgres":
		if u, err := url.Parse(c.Helpdesk.DSN); err == nil && u.Host != "" {
			info["user"] = u.User.Username()
			info["host_port"] = u.Host
			info["database"] = strings.TrimPrefix(u.Path, "/")
			return info
		}
		for _, field := range strings.Fields(c.Helpdesk.DSN) {
			key, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch key {
			case "user":
				info["user"] = value
			case "host":
				info["host"] = value
			case "port":
				info["port"] = value
			case "dbname":
				info["database"] = value
			}
		}
	}

	return info
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

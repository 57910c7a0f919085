package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/voicetel/helpdesk-reporter/internal/config"
	"github.com/voicetel/helpdesk-reporter/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type sendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders reports as HTML and delivers them over SMTP.
type Mailer struct {
	cfg         config.SMTPConfig
	helpdeskURL string
	tmpl        *template.Template
	send        sendFunc
	log         *slog.Logger
}

type templateData struct {
	Subject     string
	HelpdeskURL string
	Report      *models.Report
}

var funcs = template.FuncMap{
	"pct":       func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"rating":    func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"hours":     func(v float64) string { return fmt.Sprintf("%.1fh", v) },
	"title":     titleCase,
	"status":    statusBadge,
	"ticketURL": ticketURL,
}

func statusBadge(s string) template.HTML {
	color := "#c0392b"
	if s == models.StatusTargetMet {
		color = "#27ae60"
	}
	return template.HTML(fmt.Sprintf(`<span style="color: %s;">%s</span>`, color, template.HTMLEscapeString(s)))
}

func ticketURL(base string, id int64) string {
	return fmt.Sprintf("%s/web#id=%d&model=helpdesk.ticket&view_type=form", strings.TrimRight(base, "/"), id)
}

func titleCase(f models.Frequency) string {
	s := string(f)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func New(cfg config.SMTPConfig, helpdeskURL string, log *slog.Logger) (*Mailer, error) {
	tmpl, err := template.New("report").Funcs(funcs).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}

	m := &Mailer{
		cfg:         cfg,
		helpdeskURL: helpdeskURL,
		tmpl:        tmpl,
		log:         log.With(slog.String("component", "mailer")),
	}
	m.send = m.sendMail
	return m, nil
}

// Subject is the email subject line for a report.
func (m *Mailer) Subject(report *models.Report) string {
	subject := fmt.Sprintf("%s Team Report - %s - %s",
		titleCase(report.Window.Frequency),
		report.Config.Name,
		report.Date,
	)
	if m.cfg.SubjectPrefix != "" {
		subject = m.cfg.SubjectPrefix + " " + subject
	}
	return subject
}

// Render produces the HTML body for a report.
func (m *Mailer) Render(report *models.Report) (string, error) {
	var buf bytes.Buffer
	data := templateData{
		Subject:     m.Subject(report),
		HelpdeskURL: m.helpdeskURL,
		Report:      report,
	}
	if err := m.tmpl.ExecuteTemplate(&buf, "report.html.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

func (m *Mailer) SendReport(ctx context.Context, to string, report *models.Report) error {
	body, err := m.Render(report)
	if err != nil {
		return err
	}

	msg := m.buildMessage(to, m.Subject(report), body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
	if err := m.send(ctx, addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	m.log.Debug("email_sent", slog.String("to", to), slog.Int("bytes", len(msg)))
	return nil
}

func (m *Mailer) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Ping dials the SMTP server and exchanges greetings without sending mail.
func (m *Mailer) Ping(ctx context.Context) error {
	c, err := m.dial(ctx, net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port)))
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (m *Mailer) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	d := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if m.cfg.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(m.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			c.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return c, nil
}

// sendMail is smtp.SendMail with a context-aware dial and deadline.
func (m *Mailer) sendMail(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	c, err := m.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

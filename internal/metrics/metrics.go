package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicetel/helpdesk-reporter/internal/models"
)

const namespace = "helpdesk_reporter"

// Metrics holds the reporter's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	reportsSent    *prometheus.CounterVec
	configsSkipped *prometheus.CounterVec
	badgesGranted  *prometheus.CounterVec
	runFailures    *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	lastSuccess    *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reportsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_sent_total",
			Help:      "Reports delivered to managers by frequency.",
		}, []string{"frequency"}),
		configsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configs_skipped_total",
			Help:      "Configs skipped during a run by reason.",
		}, []string{"reason"}),
		badgesGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_granted_total",
			Help:      "Badges granted to agents by tier.",
		}, []string{"tier"}),
		runFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Runs aborted by an error, by frequency.",
		}, []string{"frequency"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Histogram of report run durations by frequency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"frequency"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error.",
		}, []string{"frequency"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Admin API requests by route and status.",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.reportsSent,
		m.configsSkipped,
		m.badgesGranted,
		m.runFailures,
		m.runDuration,
		m.lastSuccess,
		m.httpRequests,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ReportSent(freq models.Frequency) {
	if m == nil {
		return
	}
	m.reportsSent.WithLabelValues(string(freq)).Inc()
}

func (m *Metrics) ConfigSkipped(reason string) {
	if m == nil {
		return
	}
	m.configsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BadgeGranted(tier models.BadgeTier) {
	if m == nil {
		return
	}
	m.badgesGranted.WithLabelValues(tier.Key()).Inc()
}

// ObserveRun records a finished run. A non-nil err counts as a failure and
// leaves the last-success gauge alone.
func (m *Metrics) ObserveRun(freq models.Frequency, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(string(freq)).Observe(duration.Seconds())
	if err != nil {
		m.runFailures.WithLabelValues(string(freq)).Inc()
		return
	}
	m.lastSuccess.WithLabelValues(string(freq)).SetToCurrentTime()
}

func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the runtime.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// App lifecycle metrics
	AppsInstalled   prometheus.Gauge
	InstallsTotal   prometheus.Counter
	UninstallsTotal prometheus.Counter
	StartsTotal     prometheus.Counter
	StopsTotal      prometheus.Counter

	// Script execution metrics
	ExecutionDuration *prometheus.HistogramVec
	ScriptErrors      prometheus.Counter
	PermissionDenials *prometheus.CounterVec

	// Sandbox metrics
	SandboxesActive prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector and registers every series with the
// default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runtime_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		AppsInstalled: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "runtime_apps_installed",
				Help: "Number of installed apps",
			},
		),
		InstallsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_installs_total",
				Help: "Total number of successful installs",
			},
		),
		UninstallsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_uninstalls_total",
				Help: "Total number of uninstalls",
			},
		),
		StartsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_app_starts_total",
				Help: "Total number of app starts",
			},
		),
		StopsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_app_stops_total",
				Help: "Total number of app stops",
			},
		),

		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runtime_script_execution_seconds",
				Help:    "Script execution duration in seconds",
				Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		ScriptErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_script_errors_total",
				Help: "Total number of script execution errors",
			},
		),
		PermissionDenials: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_permission_denials_total",
				Help: "Total number of denied native calls",
			},
			[]string{"op"},
		),

		SandboxesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "runtime_sandboxes_active",
				Help: "Number of live sandboxes",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "runtime_uptime_seconds",
				Help: "Runtime uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordExecution records a script run with its classified outcome.
func (m *Metrics) RecordExecution(outcome string, duration time.Duration) {
	m.ExecutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetAppsInstalled sets the installed-apps gauge.
func (m *Metrics) SetAppsInstalled(count int) {
	m.AppsInstalled.Set(float64(count))
}

// SetSandboxesActive sets the live-sandbox gauge.
func (m *Metrics) SetSandboxesActive(count int) {
	m.SandboxesActive.Set(float64(count))
}

// Package monitoring collects Prometheus metrics for the HTTP surface,
// the SQL agent, LLM calls, and the backend client.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// LLM metrics
	LLMCalls    *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec
	LLMErrors   *prometheus.CounterVec

	// Agent metrics
	AgentRuns       *prometheus.CounterVec
	AgentDuration   *prometheus.HistogramVec
	AgentNodeVisits *prometheus.CounterVec
	AgentRetries    prometheus.Counter

	// Backend client metrics
	BackendCalls    *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	BackendUp       prometheus.Gauge

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsSaved    prometheus.Counter
	SessionsRestored prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	ActiveConnections int64
	TotalDuration     float64 // sum of all request durations
	RequestCount      int64   // count for averaging
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgenie_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgenie_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgenie_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// LLM metrics
		LLMCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_llm_calls_total",
				Help: "Total number of LLM completions requested",
			},
			[]string{"model", "purpose", "status"},
		),
		LLMDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgenie_llm_duration_seconds",
				Help:    "LLM completion duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"model", "purpose"},
		),
		LLMErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_llm_errors_total",
				Help: "Total number of failed LLM completions",
			},
			[]string{"model", "purpose", "error_type"},
		),

		// Agent metrics
		AgentRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_agent_runs_total",
				Help: "Total number of agent runs by outcome",
			},
			[]string{"outcome"},
		),
		AgentDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgenie_agent_duration_seconds",
				Help:    "End-to-end agent run duration in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		AgentNodeVisits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_agent_node_visits_total",
				Help: "Total number of agent node executions",
			},
			[]string{"node"},
		),
		AgentRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qgenie_agent_retries_total",
				Help: "Total number of SQL regeneration retries",
			},
		),

		// Backend client metrics
		BackendCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_backend_calls_total",
				Help: "Total number of backend API calls",
			},
			[]string{"operation", "status"},
		),
		BackendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgenie_backend_duration_seconds",
				Help:    "Backend API call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		BackendUp: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qgenie_backend_up",
				Help: "Whether the backend is reachable (1) or not (0)",
			},
		),

		// Session metrics
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qgenie_sessions_active",
				Help: "Number of active chat sessions",
			},
		),
		SessionsSaved: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qgenie_sessions_saved_total",
				Help: "Total number of sessions saved",
			},
		),
		SessionsRestored: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "qgenie_sessions_restored_total",
				Help: "Total number of sessions restored",
			},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qgenie_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgenie_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qgenie_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordLLMCall records an LLM completion
func (m *Metrics) RecordLLMCall(model, purpose, status string, duration time.Duration) {
	m.LLMCalls.WithLabelValues(model, purpose, status).Inc()
	m.LLMDuration.WithLabelValues(model, purpose).Observe(duration.Seconds())
}

// RecordLLMError records a failed LLM completion
func (m *Metrics) RecordLLMError(model, purpose, errorType string) {
	m.LLMErrors.WithLabelValues(model, purpose, errorType).Inc()
}

// RecordAgentRun records a completed agent run
func (m *Metrics) RecordAgentRun(outcome string, duration time.Duration) {
	m.AgentRuns.WithLabelValues(outcome).Inc()
	m.AgentDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAgentNodeVisit records an agent node execution
func (m *Metrics) RecordAgentNodeVisit(node string) {
	m.AgentNodeVisits.WithLabelValues(node).Inc()
}

// IncAgentRetries increments the SQL regeneration counter
func (m *Metrics) IncAgentRetries() {
	m.AgentRetries.Inc()
}

// RecordBackendCall records a backend API call
func (m *Metrics) RecordBackendCall(operation, status string, duration time.Duration) {
	m.BackendCalls.WithLabelValues(operation, status).Inc()
	m.BackendDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBackendUp sets the backend reachability gauge
func (m *Metrics) SetBackendUp(up bool) {
	if up {
		m.BackendUp.Set(1)
	} else {
		m.BackendUp.Set(0)
	}
}

// SetSessionsActive sets the number of active sessions
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// IncSessionsSaved increments the sessions saved counter
func (m *Metrics) IncSessionsSaved() {
	m.SessionsSaved.Inc()
}

// IncSessionsRestored increments the sessions restored counter
func (m *Metrics) IncSessionsRestored() {
	m.SessionsRestored.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current aggregate values for the JSON stats API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// UptimeSeconds returns seconds since the collector was created
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}

package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll tick outcomes.
const (
	TickApplied = "applied"
	TickSkipped = "skipped"
	TickStale   = "stale"
)

// MetricsService encapsulates Prometheus instrumentation for the dashboard.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	pollTicks       *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	activePollers   prometheus.Gauge
}

// NewMetricsService registers the dashboard collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	backendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_backend_call_duration_seconds",
		Help:    "Duration of calls to the report backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "outcome"})

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_uploads_total",
		Help: "Spreadsheet selections and submissions by outcome",
	}, []string{"outcome"})

	pollTicks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_poll_ticks_total",
		Help: "Progress poller ticks by outcome",
	}, []string{"outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_active_sessions",
		Help: "Open dashboard sessions",
	})

	activePollers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "progress_pollers_running",
		Help: "Progress pollers currently polling",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, backendDuration, uploads, pollTicks, activeSessions, activePollers, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		backendDuration: backendDuration,
		uploads:         uploads,
		pollTicks:       pollTicks,
		activeSessions:  activeSessions,
		activePollers:   activePollers,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveBackendCall records one report backend round trip.
func (m *MetricsService) ObserveBackendCall(endpoint, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}

// RecordUpload counts a selection or submission outcome.
func (m *MetricsService) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// RecordPollTick counts a poller tick by outcome.
func (m *MetricsService) RecordPollTick(outcome string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(outcome).Inc()
}

// PollerStarted and PollerStopped track running pollers.
func (m *MetricsService) PollerStarted() {
	if m == nil {
		return
	}
	m.activePollers.Inc()
}

func (m *MetricsService) PollerStopped() {
	if m == nil {
		return
	}
	m.activePollers.Dec()
}

// SetActiveSessions publishes the open session count.
func (m *MetricsService) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

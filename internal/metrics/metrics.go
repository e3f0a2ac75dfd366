package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	lifecycleEvents *prometheus.CounterVec
	apiErrors       *prometheus.CounterVec
	logins          *prometheus.CounterVec
	liveClients     prometheus.Gauge
	ledgerDrift     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		lifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_events_total",
			Help:      "Appointment lifecycle events by type",
		}, []string{"event_type"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "API error responses by error code",
		}, []string{"code"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by role and outcome",
		}, []string{"role", "status"}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_feed_clients",
			Help:      "Connected admin live feed clients",
		}),
		ledgerDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_drift_doctors",
			Help:      "Doctors whose slot ledger disagreed with their appointments at the last reconcile",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.lifecycleEvents,
		m.apiErrors,
		m.logins,
		m.liveClients,
		m.ledgerDrift,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) LifecycleEvent(eventType string) {
	if m == nil {
		return
	}
	m.lifecycleEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) APIError(code string) {
	if m == nil {
		return
	}
	m.apiErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) Login(role string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.logins.WithLabelValues(role, status).Inc()
}

func (m *Metrics) LiveClients(delta float64) {
	if m == nil {
		return
	}
	m.liveClients.Add(delta)
}

func (m *Metrics) LedgerDrift(doctors int) {
	if m == nil {
		return
	}
	m.ledgerDrift.Set(float64(doctors))
}

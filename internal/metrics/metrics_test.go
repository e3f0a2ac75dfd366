package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveHTTP(http.MethodPost, "/api/user/book-appointment", 200, 15*time.Millisecond)
	m.ObserveHTTP(http.MethodPost, "/api/user/book-appointment", 409, 5*time.Millisecond)
	m.LifecycleEvent("APPOINTMENT_CREATED")
	m.LifecycleEvent("APPOINTMENT_CREATED")
	m.APIError("SlotConflict")
	m.Login("user", false)
	m.LedgerDrift(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/user/book-appointment", "409")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lifecycleEvents.WithLabelValues("APPOINTMENT_CREATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiErrors.WithLabelValues("SlotConflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("user", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ledgerDrift))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
		m.LifecycleEvent("x")
		m.APIError("x")
		m.Login("admin", true)
		m.LiveClients(1)
		m.LedgerDrift(0)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.LifecycleEvent("APPOINTMENT_CANCELLED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clinic_appointment_events_total{event_type="APPOINTMENT_CANCELLED"} 1`)
}

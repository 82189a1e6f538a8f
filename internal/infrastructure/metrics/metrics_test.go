package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveTransition("success")
	m.ObserveTransition("success")
	m.ObserveTransition("permission_denied")
	m.ObservePublish("accepted")
	m.ObserveConsume("audit", "processed")
	m.ObserveConsume("audit", "malformed")
	m.ObserveSweep("audit", 12, nil)
	m.ObserveSweep("notifications", 0, errors.New("locked"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("permission_denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishesTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consumedTotal.WithLabelValues("audit", "malformed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.purgedTotal.WithLabelValues("audit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepsTotal.WithLabelValues("notifications", "failed")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveTransition("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `editorial_workflow_transitions_total{outcome="success"} 1`)
}

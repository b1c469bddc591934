package sngraz

import (
	"context"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	portal := newFakePortal(t, newFakeClock(testNow))
	portal.handle(installationsPath, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	doer := &flakyDoer{next: portal.srv.Client(), fails: 1}
	acc := portal.account(WithMetrics(metrics), WithHTTPClient(doer))

	require.NoError(t, acc.Refresh(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.authentications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(loginPath, outcomeTransport)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(loginPath, outcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.retries.WithLabelValues(loginPath)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(installationsPath, outcomeNoResult)))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.latency), "one series per path")
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeRequest("login", outcomeOK, 0)
		m.recordRetry("login")
		m.recordAuthentication("ok")
	})
}

func TestMetricsRecordAPIErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	portal := newFakePortal(t, newFakeClock(testNow))
	portal.handle(installationsPath, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		writeJSON(w, map[string]any{"error": "session expired"})
	})
	acc := portal.account(WithMetrics(metrics))

	assert.ErrorIs(t, acc.Refresh(context.Background()), ErrProtocol)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(installationsPath, outcomeAPIError)))
	assert.Zero(t, testutil.ToFloat64(metrics.requests.WithLabelValues(installationsPath, outcomeOK)))
}

package sngraz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes recorded by Metrics.
const (
	outcomeOK        = "ok"
	outcomeNoResult  = "no_result"
	outcomeAPIError  = "api_error"
	outcomeTransport = "transport_error"
	outcomeTimeout   = "timeout"
	outcomeProtocol  = "protocol_error"
)

// Metrics exposes API client instruments. A nil *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	authentications *prometheus.CounterVec
}

// NewMetrics creates the client instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sngraz",
			Name:      "api_requests_total",
			Help:      "API request attempts by path and outcome.",
		}, []string{"path", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sngraz",
			Name:      "api_request_duration_seconds",
			Help:      "API request latency by path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sngraz",
			Name:      "api_retries_total",
			Help:      "Immediate retries after connection errors.",
		}, []string{"path"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sngraz",
			Name:      "authentications_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.latency, m.retries, m.authentications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, outcome).Inc()
	m.latency.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) recordRetry(path string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(path).Inc()
}

func (m *Metrics) recordAuthentication(result string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(result).Inc()
}

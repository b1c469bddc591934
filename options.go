package sngraz

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Stromnetz Graz web portal API root.
	DefaultBaseURL = "https://webportal.stromnetz-graz.at/api/"
	// DefaultTimeout bounds every single request.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxScanWindows caps the forward scan for the first meter reading.
	DefaultMaxScanWindows = 520
	// Version is reported in the User-Agent header.
	Version = "0.4.0"
)

// Clock provides the current time. Tests replace it with a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// HTTPDoer is the transport the session posts through. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type options struct {
	baseURL        string
	timeout        time.Duration
	location       *time.Location
	httpClient     HTTPDoer
	caBundle       []byte
	logger         *zap.Logger
	clock          Clock
	metrics        *Metrics
	limiter        *rate.Limiter
	maxScanWindows int
	userAgent      string
}

// Option configures an Account.
type Option func(*options)

// WithBaseURL overrides the API root. A trailing slash is added when missing.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		o.baseURL = u
	}
}

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLocation sets the time zone readings are displayed in and zone-less
// server timestamps are interpreted in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// WithHTTPClient replaces the transport. WithCABundle is ignored when set.
func WithHTTPClient(c HTTPDoer) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCABundle trusts the PEM encoded certificates in addition to the system pool.
func WithCABundle(pem []byte) Option {
	return func(o *options) { o.caBundle = pem }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics records request metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRateLimit limits outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(o *options) {
		if r <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithMaxScanWindows caps the number of 7 day windows Meter.FirstReading
// scans before giving up. Zero or less removes the cap.
func WithMaxScanWindows(n int) Option {
	return func(o *options) { o.maxScanWindows = n }
}

// WithUserAgent prefixes the default User-Agent with ua.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = strings.TrimSpace(ua + " " + defaultUserAgent()) }
}

func defaultUserAgent() string {
	return "sngraz/" + Version
}

func defaultOptions() *options {
	return &options{
		baseURL:        DefaultBaseURL,
		timeout:        DefaultTimeout,
		location:       time.UTC,
		clock:          systemClock{},
		maxScanWindows: DefaultMaxScanWindows,
		userAgent:      defaultUserAgent(),
	}
}

func (o *options) finish() error {
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.location == nil {
		o.location = time.UTC
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.httpClient != nil {
		return nil
	}

	client, err := newHTTPClient(o.caBundle)
	if err != nil {
		return err
	}
	o.httpClient = client
	return nil
}

// newHTTPClient builds a client that trusts the system pool plus caBundle. Timeouts are applied per request, not on the client.
func newHTTPClient(caBundle []byte) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if len(caBundle) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(caBundle) {
			return nil, errors.New("sngraz: no certificates found in CA bundle")
		}
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{Transport: transport}, nil
}

func (o *options) String() string {
	return fmt.Sprintf("base_url=%s timeout=%s location=%s", o.baseURL, o.timeout, o.location)
}

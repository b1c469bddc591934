package sngraz

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var cet = time.FixedZone("CET", 3600)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user@example.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

type recordedRequest struct {
	Path   string
	Auth   string
	Header http.Header
	Body   map[string]any
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, body map[string]any)

// fakePortal serves the portal endpoints from per-path handlers and records
// every request it receives.
type fakePortal struct {
	t     *testing.T
	srv   *httptest.Server
	clock *fakeClock

	mu       sync.Mutex
	handlers map[string]handlerFunc
	requests []recordedRequest
}

func newFakePortal(t *testing.T, clock *fakeClock) *fakePortal {
	t.Helper()
	p := &fakePortal{
		t:        t,
		clock:    clock,
		handlers: make(map[string]handlerFunc),
	}
	p.handle(loginPath, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		writeJSON(w, map[string]any{"token": mintToken(t, clock.Now().Add(time.Hour)), "success": true})
	})
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePortal) handle(path string, fn handlerFunc) {
	p.mu.Lock()
	p.handlers[path] = fn
	p.mu.Unlock()
}

func (p *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	body := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	p.mu.Lock()
	p.requests = append(p.requests, recordedRequest{
		Path:   path,
		Auth:   r.Header.Get("Authorization"),
		Header: r.Header.Clone(),
		Body:   body,
	})
	fn, ok := p.handlers[path]
	p.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	fn(w, r, body)
}

// requestsTo returns the recorded requests for path in arrival order.
func (p *fakePortal) requestsTo(path string) []recordedRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []recordedRequest
	for _, r := range p.requests {
		if r.Path == path {
			res = append(res, r)
		}
	}
	return res
}

func (p *fakePortal) options(extra ...Option) []Option {
	opts := []Option{
		WithBaseURL(p.srv.URL),
		WithHTTPClient(p.srv.Client()),
		WithClock(p.clock),
		WithLocation(cet),
	}
	return append(opts, extra...)
}

func (p *fakePortal) account(extra ...Option) *Account {
	p.t.Helper()
	acc, err := New("user@example.com", "secret", p.options(extra...)...)
	require.NoError(p.t, err)
	return acc
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func installationsBody(mode string) []map[string]any {
	return []map[string]any{{
		"installationID":     10,
		"customerID":         20,
		"customerNumber":     30,
		"installationNumber": 40,
		"address":            "Andreas-Hofer-Platz 15, 8010 Graz",
		"meterPoints": []map[string]any{{
			"meterPointID": 100,
			"name":         "AT0016000000000000000000000123456",
			"shortName":    "Haushalt",
			"optState":     map[string]any{"currentOptState": mode},
		}},
	}}
}

func value(readingType, state string, v float64) map[string]any {
	return map[string]any{"readingType": readingType, "readingState": state, "value": v}
}

func reading(readTime string, values ...map[string]any) map[string]any {
	return map[string]any{"readTime": readTime, "readingValues": values}
}

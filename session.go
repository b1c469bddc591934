package sngraz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const loginPath = "login"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Success *bool  `json:"success"`
}

// Session owns the credentials and bearer token for one API user and is the
// single channel every domain object queries through.
type Session struct {
	username string
	password string

	baseURL   string
	timeout   time.Duration
	location  *time.Location
	userAgent string
	client    HTTPDoer
	limiter   *rate.Limiter
	clock     Clock
	metrics   *Metrics
	logger    *zap.Logger

	// maxScanWindows bounds Meter.FirstReading; <= 0 means unbounded.
	maxScanWindows int

	mu    sync.Mutex
	token string

	// login de-duplicates concurrent re-authentication.
	login singleflight.Group
}

func newSession(username, password string, o *options) *Session {
	return &Session{
		username:  username,
		password:  password,
		baseURL:   o.baseURL,
		timeout:   o.timeout,
		location:  o.location,
		userAgent: o.userAgent,
		client:    o.httpClient,
		limiter:   o.limiter,
		clock:     o.clock,
		metrics:   o.metrics,
		logger:    o.logger,

		maxScanWindows: o.maxScanWindows,
	}
}

// Valid reports whether the session holds an unexpired token. The signature
// is not verified. A token that fails to decode or has expired is discarded.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked()
}

func (s *Session) validLocked() bool {
	if s.token == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
		s.logger.Debug("discarding undecodable token", zap.Error(err))
		s.token = ""
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		s.token = ""
		return false
	}
	if exp != nil && !exp.Time.After(s.clock.Now()) {
		s.logger.Debug("discarding expired token", zap.Time("expired_at", exp.Time))
		s.token = ""
		return false
	}
	return true
}

// currentToken returns the token if it is still valid, "" otherwise.
func (s *Session) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked() {
		return ""
	}
	return s.token
}

// Token returns the raw bearer token, valid or not.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken installs a previously obtained token, e.g. one restored from disk.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Location is the time zone readings are interpreted in.
func (s *Session) Location() *time.Location {
	return s.location
}

// Authenticate logs in with the session credentials. It reports false without
// an error when the server answers with a non-200 status.
func (s *Session) Authenticate(ctx context.Context) (bool, error) {
	resp, err := s.do(ctx, loginPath, loginRequest{Email: s.username, Password: s.password}, false)
	if err != nil {
		s.metrics.recordAuthentication("error")
		return false, err
	}

	switch resp.Kind {
	case KindNone:
		s.metrics.recordAuthentication("no_result")
		return false, nil
	case KindError:
		s.metrics.recordAuthentication("rejected")
		return false, fmt.Errorf("%w: %s", ErrInvalidCredentials, resp.Message)
	case KindList:
		s.metrics.recordAuthentication("error")
		return false, fmt.Errorf("%w: unexpected list response from %s", ErrProtocol, loginPath)
	}

	var lr loginResponse
	if err := resp.Decode(&lr); err != nil {
		s.metrics.recordAuthentication("error")
		return false, err
	}
	if (lr.Success != nil && !*lr.Success) || lr.Token == "" {
		s.metrics.recordAuthentication("error")
		return false, fmt.Errorf("%w: no token returned", ErrProtocol)
	}

	s.mu.Lock()
	s.token = lr.Token
	ok := s.validLocked()
	s.mu.Unlock()
	if !ok {
		s.metrics.recordAuthentication("invalid_token")
		return false, fmt.Errorf("%w: issued token is not valid", ErrAuthenticationFailed)
	}

	s.metrics.recordAuthentication("ok")
	s.logger.Debug("authenticated", zap.String("username", s.username))
	return true, nil
}

// Query posts payload to path, logging in first when the token is missing or
// expired. A nil error with a KindNone response means the server answered
// with a non-200 status.
func (s *Session) Query(ctx context.Context, path string, payload any) (*Response, error) {
	if !s.Valid() {
		if err := s.reauthenticate(ctx); err != nil {
			return nil, err
		}
	}
	return s.do(ctx, path, payload, true)
}

// reauthenticate runs at most one login at a time; concurrent callers share
// its result. The shared login ignores cancellation of the caller that
// started it and is bounded by the request timeout; each caller stops
// waiting when its own context is done.
func (s *Session) reauthenticate(ctx context.Context) error {
	loginCtx := context.WithoutCancel(ctx)
	ch := s.login.DoChan(loginPath, func() (any, error) {
		if s.Valid() {
			return true, nil
		}
		return s.Authenticate(loginCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

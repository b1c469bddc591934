package sngraz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxRetries is the number of extra attempts after a connection-level error.
const maxRetries = 2

// Kind tags the shape of an API response.
type Kind int

const (
	// KindNone means the server answered with a non-200 status. There is no body.
	KindNone Kind = iota
	// KindList is a JSON array. Lists are always successful responses.
	KindList
	// KindObject is a JSON object without an error field.
	KindObject
	// KindError is a flat JSON object carrying a non-empty error field.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Response is a decoded API reply, classified once right after it is read.
type Response struct {
	Kind       Kind
	StatusCode int
	Body       json.RawMessage
	// Message holds the error field for KindError responses.
	Message string
}

// OK reports whether the response carries a usable body.
func (r *Response) OK() bool {
	return r != nil && (r.Kind == KindList || r.Kind == KindObject)
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("%w: empty response body", ErrProtocol)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", ErrProtocol, r.Kind, err)
	}
	return nil
}

// newResponse classifies a raw body received with status.
func newResponse(status int, body []byte) (*Response, error) {
	if status != http.StatusOK {
		return &Response{Kind: KindNone, StatusCode: status}, nil
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrProtocol)
	}

	resp := &Response{StatusCode: status, Body: json.RawMessage(body)}
	switch body[0] {
	case '[':
		resp.Kind = KindList
	case '{':
		var flat struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(body, &flat); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		resp.Kind = KindObject
		if msg := errorMessage(flat.Error); msg != "" {
			resp.Kind = KindError
			resp.Message = msg
		}
	default:
		return nil, fmt.Errorf("%w: unexpected response %.32q", ErrProtocol, body)
	}
	return resp, nil
}

// errorMessage renders the error field, or "" when it is absent, null, false or empty.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch string(raw) {
	case "null", "false", "{}", "[]":
		return ""
	}
	return string(raw)
}

// do posts payload to path, retrying connection errors. Non-200 statuses come
// back as KindNone without retry; timeouts fail immediately. The bearer token
// is attached only when authorize is set.
func (s *Session) do(ctx context.Context, path string, payload any, authorize bool) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", path, err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			s.metrics.recordRetry(path)
			s.logger.Debug("retrying request after connection error",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := s.attempt(ctx, path, body, authorize)
		if err == nil {
			s.observe(path, resp, start)
			return resp, nil
		}

		switch {
		case errors.Is(err, ErrProtocol):
			s.metrics.observeRequest(path, outcomeProtocol, time.Since(start))
			s.logger.Error("invalid response from API", zap.String("path", path), zap.Error(err))
			return nil, err
		case ctx.Err() != nil:
			// The caller gave up; that is not ours to retry or reclassify.
			return nil, ctx.Err()
		case isTimeout(err):
			s.metrics.observeRequest(path, outcomeTimeout, time.Since(start))
			s.logger.Error("timed out when connecting to API", zap.String("path", path), zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, path, err)
		}

		s.metrics.observeRequest(path, outcomeTransport, time.Since(start))
		lastErr = err
	}

	s.logger.Error("error connecting to API", zap.String("path", path), zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %s: %v", ErrTransport, path, lastErr)
}

func (s *Session) attempt(ctx context.Context, path string, body []byte, authorize bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrProtocol, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token := s.currentToken(); authorize && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return newResponse(resp.StatusCode, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return newResponse(resp.StatusCode, data)
}

func (s *Session) observe(path string, resp *Response, start time.Time) {
	switch resp.Kind {
	case KindNone:
		s.metrics.observeRequest(path, outcomeNoResult, time.Since(start))
		s.logger.Error("error connecting to API",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
	case KindError:
		s.metrics.observeRequest(path, outcomeAPIError, time.Since(start))
		s.logger.Error("received non-compatible response",
			zap.String("path", path),
			zap.String("error", resp.Message),
		)
	default:
		s.metrics.observeRequest(path, outcomeOK, time.Since(start))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

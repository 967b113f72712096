// Package interceptor holds the axonet middlewares of the remote feed clients.
package interceptor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/robalyx/decelerator/internal/fediverse"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Status turns non-success responses into the remote error taxonomy.
// It sits innermost so the response it inspects is the server's own.
type Status struct {
	logger logger.Logger
	now    func() time.Time
}

// NewStatus creates a Status middleware.
func NewStatus() *Status {
	return &Status{
		logger: &logger.NoOpLogger{},
		now:    time.Now,
	}
}

// Process sends the request and classifies the response status.
func (m *Status) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	resp, err := next(ctx, httpClient, req)
	if err != nil {
		return nil, err
	}

	if err := m.check(resp); err != nil {
		// The caller never sees this response, so release it here
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		m.logger.WithFields(
			logger.String("url", req.URL.Path),
			logger.Int("status", resp.StatusCode),
		).Debug("Remote request refused")

		return nil, err
	}

	return resp, nil
}

// SetLogger sets the logger for the middleware.
func (m *Status) SetLogger(l logger.Logger) {
	m.logger = l
}

func (m *Status) check(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &fediverse.RateLimitError{RetryAfter: retryAfter(resp.Header, m.now())}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", fediverse.ErrUnauthorized, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &fediverse.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// retryAfter reads Retry-After (seconds or HTTP date) or Mastodon's X-RateLimit-Reset.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}

		if at, err := http.ParseTime(v); err == nil {
			return max(at.Sub(now), 0)
		}
	}

	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if at, err := time.Parse(time.RFC3339, v); err == nil {
			return max(at.Sub(now), 0)
		}
	}

	return 0
}

package fediverse

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRateLimited is returned when the remote server refuses requests because of its quota.
	ErrRateLimited = errors.New("rate limited by remote server")
	// ErrUnauthorized is returned when the credential was rejected.
	ErrUnauthorized = errors.New("credential rejected by remote server")
	// ErrInvalidResponse is returned when a response body cannot be understood.
	ErrInvalidResponse = errors.New("invalid response from remote server")
)

// RateLimitError carries the server's hint on when to retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", ErrRateLimited, e.RetryAfter)
	}

	return ErrRateLimited.Error()
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// HTTPError is any other non-success response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("remote server responded %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusRequestTimeout
}

// IsPermanent reports whether retrying a failed remote call is pointless.
// Rate limits are handled by callers and are not permanent.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidResponse) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return !httpErr.Temporary()
	}

	return false
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}

	return 0
}

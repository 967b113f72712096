package interceptor

import (
	"context"
	"net/http"

	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
)

// Auth stamps the account token and client identity on every request.
type Auth struct {
	token     string
	userAgent string
	logger    logger.Logger
}

// NewAuth creates an Auth middleware. An empty token sends no Authorization header.
func NewAuth(token, userAgent string) *Auth {
	return &Auth{
		token:     token,
		userAgent: userAgent,
		logger:    &logger.NoOpLogger{},
	}
}

// Process sets the request headers before passing the request on.
func (m *Auth) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")

	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}

	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return next(ctx, httpClient, req)
}

// SetLogger sets the logger for the middleware.
func (m *Auth) SetLogger(l logger.Logger) {
	m.logger = l
}

package interceptor

import (
	"context"
	"net/http"

	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"golang.org/x/time/rate"
)

// Pacer holds requests to one server under its shared request budget.
// Every client for the same domain is handed the same limiter.
type Pacer struct {
	limiter *rate.Limiter
	logger  logger.Logger
}

// NewPacer creates a Pacer. A nil limiter never waits.
func NewPacer(limiter *rate.Limiter) *Pacer {
	return &Pacer{
		limiter: limiter,
		logger:  &logger.NoOpLogger{},
	}
}

// Process waits for a token and then passes the request on.
func (m *Pacer) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			m.logger.WithFields(
				logger.String("host", req.URL.Host),
				logger.String("error", err.Error()),
			).Debug("Request abandoned while pacing")

			return nil, err
		}
	}

	return next(ctx, httpClient, req)
}

// SetLogger sets the logger for the middleware.
func (m *Pacer) SetLogger(l logger.Logger) {
	m.logger = l
}

// Package provider builds remote feed clients for registered servers.
package provider

import (
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/jaxron/axonet/middleware/circuitbreaker"
	"github.com/jaxron/axonet/middleware/singleflight"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/robalyx/decelerator/internal/database/types"
	"github.com/robalyx/decelerator/internal/fediverse"
	"github.com/robalyx/decelerator/internal/fediverse/interceptor"
	"github.com/robalyx/decelerator/internal/fediverse/mastodon"
	"github.com/robalyx/decelerator/internal/fediverse/misskey"
	"github.com/robalyx/decelerator/internal/setup/config"
	"github.com/robalyx/decelerator/internal/setup/telemetry/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Factory creates clients that share one request limiter per domain.
type Factory struct {
	cfg    config.Remote
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	clients  map[clientKey]*client.Client

	// baseURL overrides https://domain, used by tests.
	baseURL func(domain string) string
}

// clientKey identifies one account's HTTP client. Singleflight and the
// circuit breaker never merge state across tokens.
type clientKey struct {
	domain string
	token  string
}

var _ fediverse.Factory = (*Factory)(nil)

// New creates a Factory from the remote configuration.
func New(cfg config.Remote, zapLogger *zap.Logger) *Factory {
	return &Factory{
		cfg:      cfg,
		logger:   zapLogger.Named("remote"),
		limiters: make(map[string]*rate.Limiter),
		clients:  make(map[clientKey]*client.Client),
	}
}

// WithBaseURL makes clients talk to resolve(domain) instead of https://domain.
func (f *Factory) WithBaseURL(resolve func(domain string) string) *Factory {
	f.baseURL = resolve
	return f
}

// NewClient implements fediverse.Factory.
func (f *Factory) NewClient(cred fediverse.Credential) (fediverse.Client, error) {
	var build func(*fediverse.Transport) fediverse.Client

	switch cred.Software {
	case types.SoftwareMastodon:
		build = func(t *fediverse.Transport) fediverse.Client { return mastodon.New(t) }
	case types.SoftwareMisskey:
		build = func(t *fediverse.Transport) fediverse.Client { return misskey.New(t) }
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedSoftware, cred.Software)
	}

	baseURL := "https://" + cred.Domain
	if f.baseURL != nil {
		baseURL = f.baseURL(cred.Domain)
	}

	return build(fediverse.NewTransport(baseURL, f.httpClient(cred))), nil
}

// PageSize returns the configured page size.
func (f *Factory) PageSize() int {
	return f.cfg.PageSize
}

func (f *Factory) httpClient(cred fediverse.Credential) *client.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := clientKey{domain: cred.Domain, token: cred.Token}
	if c, ok := f.clients[key]; ok {
		return c
	}

	c := NewHTTPClient(f.cfg, cred.Token, f.limiterLocked(cred.Domain),
		f.logger.With(zap.String("domain", cred.Domain)))
	f.clients[key] = c

	return c
}

func (f *Factory) limiterLocked(domain string) *rate.Limiter {
	if l, ok := f.limiters[domain]; ok {
		return l
	}

	l := rate.NewLimiter(rate.Limit(f.cfg.RequestsPerSecond), max(f.cfg.Burst, 1))
	f.limiters[domain] = l

	return l
}

// NewHTTPClient constructs the middleware chain for one account on one server.
// A nil limiter disables pacing.
func NewHTTPClient(cfg config.Remote, token string, limiter *rate.Limiter, zapLogger *zap.Logger) *client.Client {
	// Build middleware chain - order matters!
	middlewares := []middleware.Middleware{
		circuitbreaker.New(
			cfg.CircuitBreaker.MaxRequests,
			config.Millis(cfg.CircuitBreaker.Interval),
			config.Millis(cfg.CircuitBreaker.Timeout),
		),
		singleflight.New(),
		interceptor.NewPacer(limiter),
		interceptor.NewAuth(token, cfg.UserAgent),
		interceptor.NewStatus(),
	}

	return client.NewClient(
		client.WithMarshalFunc(sonic.Marshal),
		client.WithUnmarshalFunc(sonic.Unmarshal),
		client.WithLogger(logger.New(zapLogger)),
		client.WithTimeout(config.Millis(cfg.RequestTimeout)),
		client.WithMiddleware(middlewares...),
	)
}

// Package ratelimit limits requests per client address.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	restTypes "github.com/robalyx/decelerator/internal/rest/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// maxTracked bounds the number of client limiters kept in memory.
	maxTracked = 10000

	headerRetryAfter = "Retry-After"
)

// Middleware holds one token bucket per client address.
type Middleware struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   *zap.Logger
}

// New creates a rate limiting middleware allowing r requests per second with burst b.
func New(r float64, b int, logger *zap.Logger) *Middleware {
	return &Middleware{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(r),
		burst:    max(b, 1),
		logger:   logger.Named("ratelimit"),
	}
}

func (m *Middleware) limiter(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	limiter, ok := m.limiters[ip]
	if !ok {
		if len(m.limiters) >= maxTracked {
			m.limiters = make(map[string]*rate.Limiter)
		}

		limiter = rate.NewLimiter(m.rate, m.burst)
		m.limiters[ip] = limiter
	}

	return limiter
}

// Handler returns the gin handler.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := m.limiter(c.ClientIP())
		if !limiter.Allow() {
			// Report when the next token would be available without taking it
			reservation := limiter.Reserve()
			retryAfter := reservation.Delay()
			reservation.Cancel()

			m.logger.Debug("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.Duration("retryAfter", retryAfter))

			c.Header(headerRetryAfter, strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, restTypes.ErrorResponse{Error: "rate limit exceeded"})

			return
		}

		c.Next()
	}
}

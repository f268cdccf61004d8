package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
	"github.com/noah-isme/tuition-api/pkg/response"
)

// limiterIdleTTL is how long an unused client limiter is kept.
const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles clients with one token bucket per authenticated user
// or, for anonymous requests, per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	logger    *zap.Logger
	now       func() time.Time
	lastSweep time.Time
}

// NewRateLimiter allows requestsPerMinute sustained with the given burst.
func NewRateLimiter(requestsPerMinute, burst int, logger *zap.Logger) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 300
	}
	if burst <= 0 {
		burst = requestsPerMinute / 6
		if burst < 1 {
			burst = 1
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:   burst,
		logger:  logger,
		now:     time.Now,
	}
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, client := range l.clients {
			if now.Sub(client.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	client, ok := l.clients[key]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = client
	}
	client.lastSeen = now
	return client.limiter
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if value, ok := c.Get(ContextUserKey); ok {
			if claims, ok := value.(*models.JWTClaims); ok && claims.UserID != "" {
				key = "user:" + claims.UserID
			}
		}

		if !l.limiterFor(key).Allow() {
			l.logger.Warn("rate limit exceeded", zap.String("client", key), zap.String("path", c.FullPath()))
			retryAfter := int(time.Duration(float64(time.Second) / float64(l.limit)).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

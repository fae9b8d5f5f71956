package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"dms-backend/internal/shared/server/respond"
)

const defaultRateLimitGroup = "DEFAULT"

const (
	limiterIdleTTL      = 10 * time.Minute
	limiterCleanupEvery = time.Minute
)

// RateLimitRule is a token bucket refilled at Rate per second up to Burst.
type RateLimitRule struct {
	Rate  float64
	Burst int
}

type RateLimitConfig struct {
	Rules        map[string]RateLimitRule
	DefaultGroup string
	GroupFor     func(*gin.Context) string
	Limiter      *RateLimiter
}

// RateLimiter keeps one limiter per principal and group. Limiters idle for
// longer than it takes their bucket to refill are evicted.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	idle     time.Duration
	now      func() time.Time
}

func NewRateLimiter(now func() time.Time) *RateLimiter {
	return newRateLimiter(now, limiterIdleTTL, limiterCleanupEvery)
}

func newRateLimiter(now func() time.Time, idle, cleanup time.Duration) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limiters: gocache.New(idle, cleanup),
		idle:     idle,
		now:      now,
	}
}

// RateLimit rejects requests over the group's rule with 429 and Retry-After.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(nil)
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = defaultRateLimitGroup
	}
	return func(c *gin.Context) {
		group := cfg.DefaultGroup
		if cfg.GroupFor != nil {
			if g := strings.TrimSpace(cfg.GroupFor(c)); g != "" {
				group = g
			}
		}
		rule, ok := cfg.Rules[group]
		if !ok {
			c.Next()
			return
		}
		principal := strings.TrimSpace(UserIDFromContext(c))
		if principal == "" {
			principal = strings.TrimSpace(c.ClientIP())
		}
		allowed, retryAfter := cfg.Limiter.Allow(principal+"|"+group, rule)
		if allowed {
			c.Next()
			return
		}
		retryAfterMs := int(retryAfter / time.Millisecond)
		if retryAfterMs <= 0 {
			retryAfterMs = 1000
		}
		retryAfterSeconds := int(math.Ceil(float64(retryAfterMs) / 1000.0))
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		respond.Error(c, http.StatusTooManyRequests, respond.CodeRateLimited, "Too many requests", gin.H{
			"retryAfterMs": retryAfterMs,
		})
	}
}

// Allow consumes one token for key and reports how long to wait when none is left.
func (l *RateLimiter) Allow(key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	now := l.now()
	lim := l.limiterFor(key, rule)

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// limiterFor returns the limiter for key and pushes back its expiry.
func (l *RateLimiter) limiterFor(key string, rule RateLimitRule) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	var lim *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Limit(rule.Rate), rule.Burst)
	}
	l.limiters.Set(key, lim, l.ttlFor(rule))
	return lim
}

// ttlFor keeps a limiter at least until its bucket would be full again.
func (l *RateLimiter) ttlFor(rule RateLimitRule) time.Duration {
	refill := time.Duration(float64(rule.Burst) / rule.Rate * float64(time.Second))
	if refill > l.idle {
		return refill
	}
	return l.idle
}

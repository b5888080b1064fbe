package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// newConnLimiter returns a token bucket allowing perMinute frames with an
// equal burst. It returns nil, meaning unlimited, when perMinute <= 0.
func newConnLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func allow(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}

const ipIdleAfter = 3 * time.Minute

// ipLimiter keeps one token bucket per client IP. Buckets that refilled
// completely are pruned at most once per ipIdleAfter.
type ipLimiter struct {
	mu        sync.Mutex
	limits    map[string]*rate.Limiter
	r         rate.Limit
	b         int
	lastPrune time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipLimiter{
		limits:    make(map[string]*rate.Limiter),
		r:         rate.Every(time.Minute / time.Duration(perMinute)),
		b:         perMinute,
		lastPrune: time.Now(),
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := time.Now(); now.Sub(l.lastPrune) > ipIdleAfter {
		for k, lim := range l.limits {
			if lim.Tokens() >= float64(l.b) {
				delete(l.limits, k)
			}
		}
		l.lastPrune = now
	}

	lim, ok := l.limits[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limits[ip] = lim
	}
	return lim
}

// Middleware rejects requests over the per-IP budget with 429.
func (l *ipLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l != nil && !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}

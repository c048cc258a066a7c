package middleware

import (
	"net/http"
	"sync"
	"time"

	"salon-booking/internal/pkg/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware throttles reservation attempts per caller so one
// client hammering a popular slot cannot starve everyone else's CAS
// retries. Keyed by authenticated user when present, client IP otherwise.
type RateLimitMiddleware struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
}

func NewRateLimitMiddleware(cfg config.ReservationConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(cfg.RateLimitRPS),
		burst:   cfg.RateLimitBurst,
	}
}

func (m *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, ok := GetUserID(c); ok {
			key = userID.String()
		}

		if !m.allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *RateLimitMiddleware) allow(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cl, ok := m.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.clients[key] = cl
	}
	cl.lastSeen = now

	if len(m.clients) > 1000 {
		m.evictStale(now)
	}
	return cl.limiter.Allow()
}

func (m *RateLimitMiddleware) evictStale(now time.Time) {
	for key, cl := range m.clients {
		if now.Sub(cl.lastSeen) > 10*time.Minute {
			delete(m.clients, key)
		}
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/stockmeter/internal/logger"
	"golang.org/x/time/rate"
)

// ipLimiter is one client's token bucket and its last use.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPThrottle sheds abusive traffic per client IP before any database or
// quota work happens. It is process local and is not the metering mechanism;
// plan quotas are enforced by the admission gateway.
type IPThrottle struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*ipLimiter
}

// NewIPThrottle allows perMinute requests per IP on average with the given
// burst. Entries idle for longer than idle are evicted by Sweep.
func NewIPThrottle(perMinute, burst int, idle time.Duration) *IPThrottle {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &IPThrottle{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
		clients: make(map[string]*ipLimiter),
	}
}

// Middleware returns the gin handler. Throttled requests get 429 with a
// Retry-After of at least one second.
func (t *IPThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if t.allow(ip) {
			c.Next()
			return
		}
		logger.L().Warn().Str("client_ip", ip).Msg("ip throttled")
		c.Header("Retry-After", "1")
		AbortWithError(c, http.StatusTooManyRequests, "Too many requests", nil)
	}
}

func (t *IPThrottle) allow(ip string) bool {
	now := t.now()

	t.mu.Lock()
	cl, ok := t.clients[ip]
	if !ok {
		cl = &ipLimiter{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[ip] = cl
	}
	cl.lastSeen = now
	t.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// Sweep drops clients idle for longer than the idle window.
func (t *IPThrottle) Sweep() {
	cutoff := t.now().Add(-t.idle)
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, cl := range t.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(t.clients, ip)
		}
	}
}

// Run sweeps periodically until stop is closed.
func (t *IPThrottle) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-stop:
			return
		}
	}
}

// Len is the number of tracked clients.
func (t *IPThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

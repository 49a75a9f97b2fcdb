package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

// idleLimiterTTL drops per-IP limiters that have not been used for a while
const idleLimiterTTL = 10 * time.Minute

// RateLimiter throttles requests per client IP with a token bucket
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *gocache.Cache
}

// NewRateLimiter allows rps requests per second with the given burst per IP.
// rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: gocache.New(idleLimiterTTL, time.Minute),
	}
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	if v, ok := l.limiters.Get(ip); ok {
		l.limiters.SetDefault(ip, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(ip, lim, gocache.DefaultExpiration); err != nil {
		// another request created it first
		if v, ok := l.limiters.Get(ip); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Allow reports whether a request from ip may proceed
func (l *RateLimiter) Allow(ip string) bool {
	if l.limit <= 0 {
		return true
	}
	return l.limiter(ip).Allow()
}

// Middleware rejects throttled requests with 429
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			metrics.HTTPRateLimited.WithLabelValues(routeTemplate(r)).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success":  false,
				"response": map[string]any{},
				"errors":   []string{"too many requests"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

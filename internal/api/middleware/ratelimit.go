package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/idan5353/video-threat-detection/internal/api/response"
	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/registry"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = 60 * time.Second
)

// RateLimit provides fixed-window rate limiting via Redis counters.
type RateLimit struct {
	counter        registry.Counter
	scope          string
	requestsPerMin int
	metrics        *metrics.Metrics
}

// NewRateLimit creates a RateLimit counting requests under scope.
func NewRateLimit(c registry.Counter, scope string, requestsPerMin int, m *metrics.Metrics) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &RateLimit{counter: c, scope: scope, requestsPerMin: requestsPerMin, metrics: m}
}

// Limit counts requests per authenticated principal, or per client IP for
// anonymous callers.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := Principal(r)
		if !ok {
			subject = ClientIP(r)
		}

		key := registry.RateLimitKey(rl.scope, subject)
		count, err := rl.counter.IncrWithExpiry(r.Context(), key, rateWindow)
		if err != nil {
			// On Redis error, allow the request (fail open)
			slog.Warn("rate limit counter unavailable", "scope", rl.scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(rateWindow).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			rl.metrics.RateLimitHits.WithLabelValues(rl.scope).Inc()
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/postflow-ai/postflow/internal/api/dto"
	"github.com/postflow-ai/postflow/internal/pkg/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/ratelimit"
)

// RateLimiter throttles API callers by client address. It shares the
// limiter implementations used for per-account publish limits.
type RateLimiter struct {
	limiter ratelimit.Limiter
	limit   int
}

func NewRateLimiter(limiter ratelimit.Limiter, limit int) *RateLimiter {
	return &RateLimiter{limiter: limiter, limit: limit}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))

		if !rl.limiter.Allow(r.Context(), rl.getKey(r)) {
			metrics.RecordRateLimitHit("api")
			dto.TooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getKey relies on chi's RealIP having rewritten RemoteAddr.
func (rl *RateLimiter) getKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

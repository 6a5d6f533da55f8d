package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"

	"artrag-gateway/internal/metrics"
	"artrag-gateway/internal/ratelimit"
	"artrag-gateway/pkg/logging"
)

// DailyIPLimit rejects callers that exceed their per-address daily
// limit with 429. The configured skipped address bypasses the check
// entirely; its counter is never touched.
func DailyIPLimit(limiter *ratelimit.DailyLimiter, skippedIP string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if skippedIP != "" && ip == skippedIP {
				next.ServeHTTP(w, r)
				return
			}

			res := limiter.Allow(r.Context(), ip)
			if !res.Allowed {
				metrics.RateLimitedTotal.WithLabelValues("ip").Inc()
				logging.L(r.Context()).Warn("ip daily limit reached",
					zap.String("ip", ip),
					zap.Int64("count", res.Count),
					zap.Int64("limit", res.Limit),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests from your IP. Please try again later."}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the caller address. After chi's RealIP middleware
// RemoteAddr is already the bare IP; otherwise the port is stripped.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

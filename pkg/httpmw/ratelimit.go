package httpmw

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"afc-coordinator/pkg/logger"
	"afc-coordinator/pkg/ratelimit"
)

// HTTPKeyExtractor derives a rate-limit bucket key from an inbound request.
type HTTPKeyExtractor func(r *http.Request) string

// DefaultHTTPKeyExtractor buckets by client IP, preferring forwarding headers.
func DefaultHTTPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects requests exceeding limiter's bucket with 429 and
// x-ratelimit-* headers, failing open if the limiter itself errors.
func RateLimit(limiter ratelimit.Limiter, keyExtractor HTTPKeyExtractor) Middleware {
	if keyExtractor == nil {
		keyExtractor = DefaultHTTPKeyExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyExtractor(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Log.Warn("rate limit check failed", "error", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				info, infoErr := limiter.GetInfo(r.Context(), key)
				if infoErr != nil {
					logger.Log.Warn("failed to get rate limit info", "error", infoErr, "key", key)
					info = &ratelimit.LimitInfo{Limit: 0, ResetAt: time.Now().Add(time.Minute)}
				}

				logger.Log.Warn("rate limit exceeded", "key", key, "limit", info.Limit)

				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", info.ResetAt.Format(time.RFC3339))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"rate limit exceeded","limit":%d,"reset_at":%q}`,
					info.Limit, info.ResetAt.Format(time.RFC3339))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

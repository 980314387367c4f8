package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"authgate/internal/platform/metrics"
	"authgate/pkg/requestcontext"
)

// Limiter builds per-bucket HTTP middleware over a counter store.
type Limiter struct {
	store    CounterStore
	disabled bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewLimiter constructs a Limiter. When disabled it passes every request
// through untouched; local development uses that.
func NewLimiter(store CounterStore, disabled bool, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{store: store, disabled: disabled, logger: logger, metrics: m}
}

// Middleware limits requests against the named bucket. The counter key folds
// in the client ip, user agent, and authenticated user so one abusive caller
// cannot exhaust the budget of everyone behind the same proxy.
func (l *Limiter) Middleware(bucketName string) func(http.Handler) http.Handler {
	bucket := BucketFor(bucketName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := Key(bucket.Name, requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx), requestcontext.UserID(ctx))

			count, resetIn, err := l.store.Incr(ctx, key, bucket.Window)
			if err != nil {
				// A broken counter backend must not take authentication down
				// with it.
				l.logger.ErrorContext(ctx, "rate limit store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := bucket.Max - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bucket.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if count > bucket.Max {
				retryAfter := int(resetIn.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"bucket", bucket.Name,
					"ip", requestcontext.ClientIP(ctx),
					"retry_after", retryAfter,
				)
				if l.metrics != nil {
					l.metrics.RateLimitRejected.WithLabelValues(bucket.Name).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "Too Many Requests",
					"message":     "Please wait before retrying",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"veris/pkg/platform/middleware/metadata"
	"veris/pkg/requestcontext"
)

// Middleware throttles requests per caller. Authenticated requests are keyed
// by account so shared NATs don't starve each other; anonymous requests fall
// back to the client IP. Limiter failures fail open: losing the limiter store
// must not take down the registry.
func Middleware(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := metadata.ClientIPFromRequest(r)
			if account := requestcontext.Account(ctx); !account.IsZero() {
				key = account.String()
			}

			result, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w, result)

			if !result.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"key", key,
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write(fmt.Appendf(nil, `{"error":"rate_limited","error_description":"Too many requests, retry after %d seconds"}`, retryAfterSeconds(result)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func retryAfterSeconds(result *Result) int {
	secs := int(time.Until(result.ResetAt).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

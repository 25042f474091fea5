package middlewares

import (
	"fmt"
	"net"
	"net/http"

	httperrors "github.com/gofancyever/dify/internal/http/errors"
	"github.com/gofancyever/dify/internal/observability/logger"
	"github.com/gofancyever/dify/internal/rate"
)

// RateLimit limita por IP de cliente. Si el limiter falla (redis caído) el
// request pasa: fail-open para no tumbar el login por infraestructura.
func RateLimit(limiter rate.Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + limiterKey(r)

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable",
					logger.Component("middlewares.rate"),
					logger.Err(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())+1))
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limiterKey(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

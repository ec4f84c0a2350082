package middleware

import (
	"log/slog"
	"net/http"

	"github.com/schoolpool/realtime/pkg/protocol"
	"github.com/schoolpool/realtime/pkg/ratelimit"
)

// NewRateLimiter gates connection attempts by source address before any
// authentication logic runs, so credential brute-force is throttled even
// when the tokens would validate. The table is owned by the caller; the
// shutdown path clears it.
func NewRateLimiter(logger *slog.Logger, table *ratelimit.Table) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Rate limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !table.Allow(reqMeta.IP) {
				logger.Warn("Connection attempt rejected by rate limiter", slog.String("ip", reqMeta.IP))
				http.Error(w, protocol.RejectRateLimit, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httpserver

import (
	"net"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/sevans717/aphila-sub004/internal/ratelimit"
)

// RateLimit throttles requests per client IP and path. It expects
// middleware.RealIP to have rewritten RemoteAddr.
func RateLimit(b *ratelimit.Buckets) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r.RemoteAddr)
			if !b.Allow(ip + "|" + r.URL.Path) {
				hlog.FromRequest(r).Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("http: throttled")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

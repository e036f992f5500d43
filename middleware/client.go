package middleware

import (
	"net"
	"net/http"

	goVerify "github.com/MrEthical07/goVerify"
)

// ClientIP attaches the request's remote address to the context so the
// engine can throttle initiations per IP. Proxy headers are not trusted.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(goVerify.WithClientIP(r.Context(), ip)))
	})
}

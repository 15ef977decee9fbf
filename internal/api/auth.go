package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// TokenAuth guards mutating routes with a static bearer token. An empty
// token disables the check.
type TokenAuth struct {
	token string
}

// NewTokenAuth creates the middleware holder.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: token}
}

// Enabled reports whether a token is configured.
func (a *TokenAuth) Enabled() bool { return a != nil && a.token != "" }

// Middleware rejects requests without "Authorization: Bearer <token>".
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !constantTimeEqual(presented, a.token) {
			RecordConnectionRejected("auth")
			w.Header().Set("WWW-Authenticate", `Bearer realm="world"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

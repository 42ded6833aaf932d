package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const internalTokenHeader = "X-Internal-Token"

// requireInternalToken gates server-to-server callbacks with a shared
// token. An unset token closes the endpoint rather than opening it.
func requireInternalToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "internal endpoint disabled", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(r.Header.Get(internalTokenHeader))
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				http.Error(w, "invalid internal token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

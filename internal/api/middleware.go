package api

import (
	"net/http"
	"strings"
)

// AuthMiddleware rejects requests that do not present the configured
// token, either as a bearer Authorization header or a token query
// parameter. Only installed when a token is configured.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authorized(r, token) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorized(r *http.Request, token string) bool {
	if r.URL.Query().Get("token") == token {
		return true
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	return strings.HasPrefix(header, prefix) && header[len(prefix):] == token
}

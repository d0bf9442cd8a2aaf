package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/notifyhub/broadcast/internal/auth"
)

// AdminAuth validates the Authorization bearer token against the configured
// admin token and places the admin identity on the request context, where
// auth.ContextAuthenticator picks it up inside the use cases.
//
// An empty configured token disables the admin API entirely rather than
// leaving it open.
func AdminAuth(token, adminID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !tokenMatches(r, token) {
				unauthorized(w)
				return
			}
			ctx := auth.WithAdmin(r.Context(), auth.Admin{ID: adminID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerAuth gates the internal endpoints (fan-out trigger, provider
// feedback) with a shared token, without establishing an admin identity.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !tokenMatches(r, token) {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenMatches(r *http.Request, want string) bool {
	header := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "unauthorized",
		"code":  "UNAUTHORIZED",
	})
}

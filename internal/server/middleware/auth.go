// Package middleware holds the HTTP middleware of the simulated backend: bearer authentication, audit
// and request metrics.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

// TokenValidator checks an access token and returns the customer it was issued to.
type TokenValidator interface {
	ValidateAccess(token string) (customerID string, err error)
}

// Auth returns middleware that validates the Bearer token from the Authorization header and sets the
// customer id in the request context. Requests without a valid token get 401.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				unauthorized(w)
				return
			}
			customerID, err := tokens.ValidateAccess(token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCustomer(r.Context(), customerID)))
		})
	}
}

// extractBearer returns the Bearer token from r, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":        "UNAUTHENTICATED",
		"description": "missing or invalid authorization",
	})
}

// Package middleware provides HTTP middleware for the mediad API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
)

// APIKeyAuth gates the configured protected path prefixes behind an API
// key, presented either as an X-API-Key header or a bearer token. Public
// prefixes always pass; paths matching neither list pass unauthenticated.
func APIKeyAuth(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || !requiresKey(cfg, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := extractAPIKey(r)
			if !ok || !keyMatches(cfg.APIKeys, key) {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requiresKey reports whether the path falls under a protected prefix.
// Public prefixes win over protected ones.
func requiresKey(cfg config.AuthConfig, path string) bool {
	for _, p := range cfg.PublicPaths {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	for _, p := range cfg.ProtectedPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// extractAPIKey reads the key from X-API-Key or Authorization: Bearer.
func extractAPIKey(r *http.Request) (string, bool) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// keyMatches compares the presented key against the configured set in
// constant time.
func keyMatches(keys []string, presented string) bool {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(presented)) == 1 {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   string(apperr.KindUnauthorized),
		"message": "a valid API key is required",
		"status":  http.StatusUnauthorized,
	})
}

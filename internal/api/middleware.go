package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// RequireKey rejects requests whose bearer key does not match keyHash. An
// empty keyHash disables the check.
func RequireKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if keyHash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			rawKey := extractKey(r)
			if rawKey == "" {
				writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "API key required")
				return
			}
			if !VerifyKey(rawKey, keyHash) {
				logger.Warn("rejected API key", "requestId", reqID, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "INVALID_KEY", "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractKey accepts "Bearer <key>", "ApiKey <key>" or an X-API-Key header.
func extractKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for _, scheme := range []string{"Bearer ", "ApiKey "} {
		if strings.HasPrefix(auth, scheme) {
			return strings.TrimSpace(strings.TrimPrefix(auth, scheme))
		}
	}
	return r.Header.Get("X-API-Key")
}

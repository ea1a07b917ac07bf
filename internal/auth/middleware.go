package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
)

// Validator resolves a raw key to its metadata.
type Validator interface {
	Validate(ctx context.Context, rawKey string) (*KeyInfo, error)
}

type contextKey int

const keyInfoKey contextKey = 0

// Middleware rejects requests without a valid key. Keys are read from
// "Authorization: Bearer", then X-API-Key. Paths under /health are exempt.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			raw := extractKey(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := v.Validate(r.Context(), raw)
			switch {
			case err == nil:
			case errors.Is(err, ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			default:
				logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), keyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyFromContext returns the authenticated key, or nil.
func KeyFromContext(ctx context.Context) *KeyInfo {
	info, _ := ctx.Value(keyInfoKey).(*KeyInfo)
	return info
}

func extractKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

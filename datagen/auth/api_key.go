package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const apiKeyHeader = "X-API-Key"

// ApiKeyAuth guards the user facing endpoints with a single service key.
// An empty key disables the check, which is intended for local development
// and tests only.
func ApiKeyAuth(key string) chi.Middlewares {
	if key == "" {
		return nil
	}

	middleware := func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				http.Error(w, "invalid or missing api key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}

	return chi.Middlewares{middleware}
}

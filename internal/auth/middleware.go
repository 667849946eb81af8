package auth

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/szaher/cppmcp/internal/ratelimit"
)

// Middleware returns HTTP middleware requiring "Authorization: Bearer <key>".
// An empty apiKey disables authentication. Requests to skipPaths pass
// through. A non-nil lockout blocks clients after repeated failures.
func Middleware(apiKey string, skipPaths []string, lockout *Lockout) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			client := ratelimit.ClientID(r)
			if lockout != nil {
				if blocked, wait := lockout.Blocked(client); blocked {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
					writeAuthError(w, http.StatusTooManyRequests, "too many failed authentication attempts")
					return
				}
			}

			key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !ValidateKey(key, apiKey) {
				if lockout != nil {
					lockout.Failure(client)
				}
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}

			if lockout != nil {
				lockout.Success(client)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const callerContextKey contextKey = iota

// ContextWithCaller returns a new context carrying the caller's key prefix.
func ContextWithCaller(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, callerContextKey, prefix)
}

// CallerFromContext extracts the authenticated caller's key prefix from the
// context, or "" if not present.
func CallerFromContext(ctx context.Context) string {
	prefix, _ := ctx.Value(callerContextKey).(string)
	return prefix
}

// ServiceAuthMiddleware returns middleware that authenticates requests using
// a service key in the Authorization header. Keys are sha256-hashed and
// compared against the configured hash list. On success the key prefix is
// injected into the request context for logging and rate limiting.
func ServiceAuthMiddleware(keyHashes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			hash := []byte(HashKey(token))
			ok := false
			for _, h := range keyHashes {
				if subtle.ConstantTimeCompare(hash, []byte(h)) == 1 {
					ok = true
				}
			}
			if !ok {
				writeUnauthorized(w, "invalid service key")
				return
			}

			prefix := token
			if len(prefix) > keyPrefixLen {
				prefix = prefix[:keyPrefixLen]
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), prefix)))
		})
	}
}

// AdminAuthMiddleware returns middleware that requires the admin key,
// verified against its bcrypt hash. Admin routes own budget configuration,
// so they are kept off the service-key surface entirely.
func AdminAuthMiddleware(adminKeyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKeyHash == "" {
				writeForbidden(w, "admin access is not configured")
				return
			}
			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}
			if !VerifyAdminKey(adminKeyHash, token) {
				writeUnauthorized(w, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeAuthError(w, http.StatusForbidden, "forbidden", message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

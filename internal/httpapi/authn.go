package httpapi

import (
	"net/http"
	"strings"

	"filmbase.org/internal/audit"
	"filmbase.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authenticate resolves a bearer token into a request identity. Requests
// without a valid token pass through unchanged; authorization is enforced
// per route.
func Authenticate(codec *auth.Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if codec == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r.Header.Get(authHeader))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			id, ok := codec.Verify(token)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuthenticated rejects requests without an identity.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.IdentityFromContext(r.Context()); !ok {
			unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose identity lacks role: 401 when there is
// no identity at all, 403 otherwise.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !id.HasRole(role) {
				_ = audit.LogEvent(r.Context(), "auth.access.denied", map[string]any{
					"path": r.URL.Path,
					"role": role,
				})
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeProblem(w, r, http.StatusForbidden, "access is denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeProblem(w, r, http.StatusUnauthorized, "full authentication is required to access this resource")
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}

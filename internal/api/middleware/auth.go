package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/sketchforge/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth guards destructive routes with a single bearer token whose bcrypt
// hash is configured at startup. An empty hash disables the guard.
type AdminAuth struct {
	hash []byte
}

func NewAdminAuth(tokenHash string) *AdminAuth {
	return &AdminAuth{hash: []byte(tokenHash)}
}

// Enabled reports whether a token hash is configured.
func (a *AdminAuth) Enabled() bool {
	return len(a.hash) > 0
}

func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		if bcrypt.CompareHashAndPassword(a.hash, []byte(token)) != nil {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
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
	return strings.TrimSpace(parts[1])
}

package auth

import (
	"net/http"
	"strings"

	"github.com/pixelproof/pixelproof/internal/rbac"
)

// JWTMiddleware validates the bearer token and attaches subject and role to
// the request context for the RBAC layer.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			claims, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil || claims == nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			ctx := rbac.WithSubject(r.Context(), claims.Sub)
			ctx = rbac.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

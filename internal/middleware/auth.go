package middleware

import (
	"context"
	"net/http"
	"strings"

	"app/internal/logger"
	"app/internal/util"
)

// Injected key type to avoid context collisions
type contextKey string

const AdminContextKey = contextKey("admin_email")

// AdminAuth guards the administrative surface with a bearer JWT. On
// success the admin's email is placed on the request context for the
// audit trail.
func AdminAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logger.New()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Error().Msg("Authorization header missing")
				http.Error(w, "Authorization header missing", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Error().Msg("Invalid authorization header")
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := util.ValidateJWT(parts[1], jwtSecret)
			if err != nil {
				logger.Error().Msgf("Invalid token: %+v", err)
				http.Error(w, "Invalid token: "+err.Error(), http.StatusUnauthorized)
				return
			}
			email := claims.Email
			if email == "" {
				email = claims.Subject
			}
			ctx := context.WithValue(r.Context(), AdminContextKey, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminEmail extracts the authenticated admin's email from the context,
// defaulting to "system" outside an authenticated request.
func AdminEmail(ctx context.Context) string {
	if email, ok := ctx.Value(AdminContextKey).(string); ok && email != "" {
		return email
	}
	return "system"
}

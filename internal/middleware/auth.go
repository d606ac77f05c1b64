package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rideflow/gateway/pkg/logger"
)

// AdminAuth guards the administrative API with HMAC-signed bearer tokens.
// With an empty secret the guard is disabled, which is only intended for
// local development.
type AdminAuth struct {
	secret []byte
	logger *logger.Logger
}

// NewAdminAuth creates a new admin API guard
func NewAdminAuth(secret string, log *logger.Logger) *AdminAuth {
	return &AdminAuth{
		secret: []byte(secret),
		logger: log.MiddlewareLogger("admin_auth"),
	}
}

// Middleware returns the admin authentication middleware
func (a *AdminAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(a.secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				a.logger.WithField("path", r.URL.Path).Warn("Admin request without bearer token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return a.secret, nil
			})

			if err != nil || !token.Valid {
				a.logger.WithField("path", r.URL.Path).Warn("Admin request with invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

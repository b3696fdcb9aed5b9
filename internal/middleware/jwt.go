package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	userKey     contextKey = "user_id"
	usernameKey contextKey = "username"
)

// UserID returns the authenticated user id stored by Auth.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userKey).(int64)
	return id, ok
}

// Username returns the authenticated username stored by Auth.
func Username(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(usernameKey).(string)
	return name, ok
}

// TokenValidator decouples this package from the user service.
type TokenValidator interface {
	ValidateToken(tokenString string) (int64, string, error)
}

type Auth struct {
	validator TokenValidator
}

func NewAuth(v TokenValidator) *Auth {
	return &Auth{validator: v}
}

func (a *Auth) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Fallback for websocket clients, which cannot set headers.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, username, err := a.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, userID)
		ctx = context.WithValue(ctx, usernameKey, username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

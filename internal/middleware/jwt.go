package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
	AdminKey    contextKey = "admin"
)

// TokenValidator is implemented by the user service. The interface keeps
// this package decoupled from it.
type TokenValidator interface {
	ValidateToken(tokenString string) (id int64, username string, admin bool, err error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Fallback for websocket clients that cannot set headers.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, username, admin, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, UsernameKey, username)
		ctx = context.WithValue(ctx, AdminKey, admin)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity pulls the authenticated user out of a request context.
func Identity(ctx context.Context) (id int64, username string, admin bool, ok bool) {
	id, ok = ctx.Value(UserKey).(int64)
	if !ok {
		return 0, "", false, false
	}
	username, _ = ctx.Value(UsernameKey).(string)
	admin, _ = ctx.Value(AdminKey).(bool)
	return id, username, admin, true
}

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/knowhub/backend/internal/models"
)

var blacklist *redis.Client

// InitAuthMiddleware wires the redis client used for logout token
// blacklisting. Without it, tokens stay valid until expiry.
func InitAuthMiddleware(redisClient *redis.Client) {
	blacklist = redisClient
}

// AuthMiddleware rejects requests without a valid bearer token and parks the
// caller's user ID and role in the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := authenticate(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", userID)
		ctx = context.WithValue(ctx, "userRole", role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth parks the caller's identity when a valid token is present and
// lets anonymous requests through untouched.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, role, err := authenticate(r); err == nil {
			ctx := context.WithValue(r.Context(), "userID", userID)
			ctx = context.WithValue(ctx, "userRole", role)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOnly gates a route on the admin role claim. Must run after
// AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value("userRole").(string)
		if role != models.RoleAdmin {
			http.Error(w, "Admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets conservative browser security headers on every
// response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func authenticate(r *http.Request) (string, string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "", fmt.Errorf("authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "", fmt.Errorf("invalid authorization header format")
	}
	tokenString := parts[1]

	if blacklist != nil {
		key := fmt.Sprintf("blacklist:%s", tokenString)
		if exists, err := blacklist.Exists(r.Context(), key).Result(); err == nil && exists > 0 {
			return "", "", fmt.Errorf("token revoked")
		}
	}

	return validateToken(tokenString)
}

func validateToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid token claims")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", "", fmt.Errorf("invalid token claims")
	}
	role, _ := claims["role"].(string)
	return userID, role, nil
}

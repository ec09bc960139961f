package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type contextKey string

const userIDKey contextKey = "authUserID"

// GetUserID retrieves the authenticated subject from context.
func GetUserID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(userIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// GetNumericUserID returns the authenticated subject parsed as a user id.
func GetNumericUserID(ctx context.Context) (uint, bool) {
	subject, ok := GetUserID(ctx)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// WithUserID returns a copy of ctx carrying subject, as JWTMiddleware does.
func WithUserID(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, userIDKey, subject)
}

// JWTMiddleware validates bearer tokens and injects user identity. Requests
// are rejected with 401 before the route handler runs.
func JWTMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		subject, err := issuer.Parse(tokenString)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}

		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), subject))
		c.Set(string(userIDKey), subject)

		c.Next()
	}
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/duochat/internal/auth"
)

// Context keys for what AuthMiddleware stores in gin.Context. Handlers go
// through the getters below instead of reading them directly.
const (
	ContextKeyIdentity = "identity"
	ContextKeyToken    = "token"
)

// TokenValidator resolves a bearer token. *auth.Validator implements it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (auth.Identity, error)
}

// AuthMiddleware requires "Authorization: Bearer <token>" and aborts with
// 401 unless the validator accepts the token. A validator backend failure
// is a 503, not a 401, so clients don't throw away a good token.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}
		token := strings.TrimSpace(parts[1])

		id, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if auth.IsAuthError(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "invalid or expired token",
				})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "authentication unavailable",
			})
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Set(ContextKeyToken, token)
		c.Next()
	}
}

// GetIdentity returns the zero Identity when the middleware did not run.
func GetIdentity(c *gin.Context) auth.Identity {
	val, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return auth.Identity{}
	}
	id, ok := val.(auth.Identity)
	if !ok {
		return auth.Identity{}
	}
	return id
}

func GetUsername(c *gin.Context) string {
	return GetIdentity(c).Username
}

func GetToken(c *gin.Context) string {
	val, exists := c.Get(ContextKeyToken)
	if !exists {
		return ""
	}
	token, ok := val.(string)
	if !ok {
		return ""
	}
	return token
}

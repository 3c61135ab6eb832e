package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/auth"
	"github.com/abdala981br/automacao/internal/errcode"
)

const (
	IdentityKey = "identity"
	EnteredKey  = "entered"
	ClaimsKey   = "claims"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.Unauthorized})
}

// AuthMiddleware 校验访问令牌，并将身份与 entered 声明注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(IdentityKey, claims.Identity)
		c.Set(EnteredKey, claims.Entered)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// IdentityFromContext returns the identity set by AuthMiddleware.
func IdentityFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(IdentityKey)
	if !ok {
		return "", false
	}
	identity, ok := value.(string)
	return identity, ok && identity != ""
}

// ClaimsFromContext returns the validated access token claims.
func ClaimsFromContext(c *gin.Context) (*auth.TokenClaims, bool) {
	value, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.TokenClaims)
	return claims, ok && claims != nil
}

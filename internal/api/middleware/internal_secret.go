package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/errcode"
)

// InternalSecretMiddleware 保护内部端点（如 /internal/metrics）。
// 未配置密钥时端点整体关闭。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found", "code": errcode.ResourceMissing})
			return
		}
		// 密钥只从 Header 读取，避免出现在 URL 与访问日志中。
		token := strings.TrimSpace(c.GetHeader("X-Internal-Secret"))
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.Unauthorized})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/errcode"
)

const entryRequiredMessage = "entry required"

// RequireEnteredMiddleware 阻止尚未通过入口页的会话访问主界面接口。
// 仅依赖 access token 内的 entered 声明，不查库。
func RequireEnteredMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if entered, ok := c.Get(EnteredKey); ok {
			if v, ok := entered.(bool); ok && v {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": entryRequiredMessage, "code": errcode.EntryRequired})
	}
}

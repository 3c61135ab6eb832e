package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/errcode"
)

// Error writes {"error": msg, "code": code}.
func Error(c *gin.Context, status, code int, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": errcode.Unauthorized})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, errcode.Unauthorized, "unauthorized")
}
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, errcode.InvalidRequest, msg)
}
func NotFound(c *gin.Context, msg string) {
	Error(c, http.StatusNotFound, errcode.ResourceMissing, msg)
}
func Conflict(c *gin.Context, msg string) {
	Error(c, http.StatusConflict, errcode.NotAwaitingInput, msg)
}
func TooManyRequests(c *gin.Context) {
	Error(c, http.StatusTooManyRequests, errcode.RateLimited, "rate limit exceeded")
}
func Unavailable(c *gin.Context, msg string) {
	Error(c, http.StatusServiceUnavailable, errcode.IdentityUnavailable, msg)
}
func Internal(c *gin.Context, code int, msg string) {
	Error(c, http.StatusInternalServerError, code, msg)
}

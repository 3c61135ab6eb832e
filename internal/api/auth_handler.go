package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/abdala981br/automacao/internal/api/middleware"
	"github.com/abdala981br/automacao/internal/errcode"
	"github.com/abdala981br/automacao/internal/session"
)

const refreshTokenCookieName = "refresh_token"

// SessionService is the part of session.Manager the HTTP layer drives.
type SessionService interface {
	SignIn(ctx context.Context, refreshToken string) (session.Result, error)
	Enter(ctx context.Context, refreshToken string) (session.Result, error)
	Refresh(ctx context.Context, refreshToken string) (session.Result, error)
	Exit(ctx context.Context, identity, refreshToken string) error
}

// AuthHandler 处理匿名登录、进入、刷新与退出。
type AuthHandler struct {
	sessions               SessionService
	redis                  redis.UniversalClient
	logger                 *slog.Logger
	accessTokenTTL         time.Duration
	refreshTokenTTL        time.Duration
	signInRateLimitPerHour int
	cookieDomain           string
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(
	sessions SessionService,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	accessTokenTTL, refreshTokenTTL time.Duration,
	signInRateLimitPerHour int,
	cookieDomain string,
) *AuthHandler {
	return &AuthHandler{
		sessions:               sessions,
		redis:                  redisClient,
		logger:                 logger,
		accessTokenTTL:         accessTokenTTL,
		refreshTokenTTL:        refreshTokenTTL,
		signInRateLimitPerHour: signInRateLimitPerHour,
		cookieDomain:           cookieDomain,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int           `json:"expires_in"`
	Session     session.State `json:"session"`
}

// SignIn 静默匿名登录，返回 entered=false 的令牌。
func (h *AuthHandler) SignIn(c *gin.Context) {
	h.establish(c, h.sessions.SignIn)
}

// Enter 用户在入口页点击进入，返回 entered=true 的令牌。
func (h *AuthHandler) Enter(c *gin.Context) {
	h.establish(c, h.sessions.Enter)
}

func (h *AuthHandler) establish(c *gin.Context, fn func(context.Context, string) (session.Result, error)) {
	ctx := c.Request.Context()
	logger := h.loggerFromContext(c)
	refreshToken := h.extractRefreshToken(c)

	// 只有可能创建新身份的请求（没有携带刷新令牌）才计入速率限制。
	if refreshToken == "" && h.signInRateLimitPerHour > 0 {
		rateKey := "rate:signin:" + c.ClientIP() + ":" + time.Now().UTC().Format("2006010215")
		count, err := incrWithTTL(ctx, h.redis, rateKey, time.Hour)
		if err != nil {
			logger.Warn("sign-in rate counter unavailable", slog.Any("error", err))
			count = 0
		}
		if count > int64(h.signInRateLimitPerHour) {
			TooManyRequests(c)
			return
		}
	}

	result, err := fn(ctx, refreshToken)
	if err != nil {
		logger.Error("establish session failed", slog.Any("error", err))
		Unavailable(c, "identity provider unavailable")
		return
	}
	if result.Created {
		logger.Info("anonymous identity issued", slog.String("identity", result.State.Identity))
	}
	h.replyWithResult(c, result)
}

// Refresh 校验刷新令牌并颁发新的令牌对，entered 状态保持不变。
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken := h.extractRefreshToken(c)
	if refreshToken == "" {
		Unauthorized(c)
		return
	}

	logger := h.loggerFromContext(c)
	result, err := h.sessions.Refresh(c.Request.Context(), refreshToken)
	switch {
	case errors.Is(err, session.ErrInvalidToken):
		logger.Info("refresh token rejected", slog.Any("error", err))
		Unauthorized(c)
		return
	case err != nil:
		logger.Error("refresh failed", slog.Any("error", err))
		Unavailable(c, "identity provider unavailable")
		return
	}

	h.replyWithResult(c, result)
}

// Session 返回访问令牌所携带的会话状态。
func (h *AuthHandler) Session(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	c.JSON(http.StatusOK, session.StateFromClaims(claims))
}

// Logout 停止该身份的机器人、吊销刷新令牌并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	if err := h.sessions.Exit(c.Request.Context(), identity, h.extractRefreshToken(c)); err != nil {
		h.loggerFromContext(c).Error("logout failed", slog.Any("error", err))
		Internal(c, errcode.SystemError, "logout failed")
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		Secure:   h.isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   h.getCookieDomain(),
	})
	c.JSON(http.StatusOK, session.State{})
}

func (h *AuthHandler) replyWithResult(c *gin.Context, result session.Result) {
	h.setRefreshCookie(c, result.Tokens.RefreshToken)
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: result.Tokens.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.accessTokenTTL.Seconds()),
		Session:     result.State,
	})
}

func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		return token
	}
	if c.Request.ContentLength == 0 {
		return ""
	}

	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string) {
	maxAge := int(h.refreshTokenTTL.Seconds())
	if maxAge <= 0 {
		maxAge = int(time.Hour.Seconds())
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    refreshToken,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   h.isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   h.getCookieDomain(),
		Expires:  time.Now().Add(h.refreshTokenTTL),
	})
}

func (h *AuthHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger, ok := middleware.RequestLogger(c); ok {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}

func (h *AuthHandler) isHTTPSRequest(c *gin.Context) bool {
	if c.Request == nil {
		return false
	}
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *AuthHandler) getCookieDomain() string { return strings.TrimSpace(h.cookieDomain) }

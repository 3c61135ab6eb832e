package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/api/middleware"
	"github.com/abdala981br/automacao/internal/domain"
	"github.com/abdala981br/automacao/internal/errcode"
)

// RegistryService is the part of registry.Registry the HTTP and WebSocket layers use.
type RegistryService interface {
	Profile(ctx context.Context, identity string) (domain.UserProfile, error)
	SaveProfile(ctx context.Context, identity string, profile domain.UserProfile) error
	Applications(ctx context.Context, identity string) ([]domain.JobApplication, error)
	ResolveNeedsInput(ctx context.Context, identity, id, answer string) error
	ObserveProfile(ctx context.Context, identity string) (<-chan domain.UserProfile, error)
	ObserveApplications(ctx context.Context, identity string) (<-chan []domain.JobApplication, error)
}

// ProfileHandler 处理个人资料的读取与整体保存。
type ProfileHandler struct {
	registry RegistryService
}

// NewProfileHandler 构造 ProfileHandler。
func NewProfileHandler(registry RegistryService) *ProfileHandler {
	return &ProfileHandler{registry: registry}
}

// GetProfile 返回当前资料；从未保存过时返回默认资料。
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	profile, err := h.registry.Profile(c.Request.Context(), identity)
	if err != nil {
		middleware.LoggerFromContext(c).Error("load profile failed", slog.Any("error", err))
		Internal(c, errcode.SystemError, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SaveProfile 整体覆盖资料，失败时返回 ProfileSaveFailed 供前端提示。
func (h *ProfileHandler) SaveProfile(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var profile domain.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := h.registry.SaveProfile(c.Request.Context(), identity, profile); err != nil {
		middleware.LoggerFromContext(c).Error("save profile failed", slog.Any("error", err))
		Internal(c, errcode.ProfileSaveFailed, "failed to save profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/api/middleware"
	"github.com/abdala981br/automacao/internal/domain"
	"github.com/abdala981br/automacao/internal/errcode"
	"github.com/abdala981br/automacao/internal/registry"
)

// ApplicationHandler 处理投递记录列表与人工回答。
type ApplicationHandler struct {
	registry RegistryService
}

// NewApplicationHandler 构造 ApplicationHandler。
func NewApplicationHandler(registry RegistryService) *ApplicationHandler {
	return &ApplicationHandler{registry: registry}
}

type applicationsResponse struct {
	Applications []domain.JobApplication `json:"applications"`
	Counts       domain.Counts           `json:"counts"`
}

// ListApplications 返回按日期倒序的记录；counts 始终基于完整列表，
// status 参数只过滤返回的记录。
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var filter domain.Status
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		filter = status
	}

	apps, err := h.registry.Applications(c.Request.Context(), identity)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list applications failed", slog.Any("error", err))
		Internal(c, errcode.SystemError, "failed to list applications")
		return
	}

	counts := domain.Summarize(apps)
	if filter != "" {
		apps = domain.FilterByStatus(apps, filter)
	}
	if apps == nil {
		apps = []domain.JobApplication{}
	}
	c.JSON(http.StatusOK, applicationsResponse{Applications: apps, Counts: counts})
}

type resolveRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// Resolve 回答 needs_input 记录的问题，使其变为 applied。
func (h *ApplicationHandler) Resolve(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	err := h.registry.ResolveNeedsInput(c.Request.Context(), identity, id, req.Answer)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, registry.ErrEmptyAnswer):
		BadRequest(c, err.Error())
	case errors.Is(err, registry.ErrApplicationNotFound):
		NotFound(c, "application not found")
	case errors.Is(err, registry.ErrNotAwaitingInput):
		Conflict(c, "application is not awaiting input")
	default:
		Internal(c, errcode.SystemError, "failed to resolve application")
	}
}

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/abdala981br/automacao/internal/api/middleware"
	"github.com/abdala981br/automacao/internal/bot"
	"github.com/abdala981br/automacao/internal/errcode"
)

// BotService is the part of bot.Manager the HTTP layer drives.
type BotService interface {
	Start(identity string) (bool, error)
	Stop(identity string) bool
	Running(identity string) bool
}

// BotHandler 控制当前身份的模拟机器人。
type BotHandler struct {
	bots   BotService
	period time.Duration
}

// NewBotHandler 构造 BotHandler。
func NewBotHandler(bots BotService, period time.Duration) *BotHandler {
	return &BotHandler{bots: bots, period: period}
}

type botStatusResponse struct {
	Running       bool    `json:"running"`
	Changed       bool    `json:"changed"`
	PeriodSeconds float64 `json:"period_seconds"`
}

// Status 返回机器人是否在运行。
func (h *BotHandler) Status(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	h.reply(c, h.bots.Running(identity), false)
}

// Start 启动机器人；已在运行时为空操作（changed=false）。
func (h *BotHandler) Start(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	changed, err := h.bots.Start(identity)
	if errors.Is(err, bot.ErrManagerClosed) {
		Error(c, http.StatusServiceUnavailable, errcode.SystemError, "server is shutting down")
		return
	}
	if errors.Is(err, bot.ErrReleased) {
		Error(c, http.StatusForbidden, errcode.EntryRequired, "session exited, enter again")
		return
	}
	if err != nil {
		middleware.LoggerFromContext(c).Error("start bot failed", slog.Any("error", err))
		Internal(c, errcode.SystemError, "failed to start bot")
		return
	}
	h.reply(c, true, changed)
}

// Stop 停止机器人；已停止时为空操作（changed=false）。
func (h *BotHandler) Stop(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	h.reply(c, false, h.bots.Stop(identity))
}

func (h *BotHandler) reply(c *gin.Context, running, changed bool) {
	c.JSON(http.StatusOK, botStatusResponse{
		Running:       running,
		Changed:       changed,
		PeriodSeconds: h.period.Seconds(),
	})
}

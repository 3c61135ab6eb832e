package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/abdala981br/automacao/internal/auth"
	"github.com/abdala981br/automacao/internal/domain"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// WsHandler 负责 WebSocket 鉴权，并把资料与投递记录的实时快照推送给前端。
type WsHandler struct {
	registry       RegistryService
	authService    *auth.AuthService
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
	pingInterval   time.Duration
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(registry RegistryService, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		registry:       registry,
		authService:    authService,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		pingInterval:   wsPingInterval,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// 推送给前端的消息，按 type 区分。
type wsProfileMessage struct {
	Type    string             `json:"type"`
	Profile domain.UserProfile `json:"profile"`
}

type wsApplicationsMessage struct {
	Type         string                  `json:"type"`
	Applications []domain.JobApplication `json:"applications"`
	Counts       domain.Counts           `json:"counts"`
}

type wsErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// HandleConnection 负责升级连接并启动读写循环。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	baseLog := h.logger.With(slog.String("client_ip", c.ClientIP()))

	identityCh := make(chan string, 1)
	errCh := make(chan error, 2)

	go h.readLoop(ctx, conn, identityCh, errCh, cancel, baseLog)

	var identity string
	select {
	case <-ctx.Done():
		return
	case err := <-errCh:
		if err != nil {
			baseLog.Warn("websocket authentication failed", slog.Any("error", err))
		}
		return
	case identity = <-identityCh:
	}

	userLog := baseLog.With(slog.String("identity", identity))
	go h.pushLoop(ctx, conn, identity, errCh, cancel, userLog)

	select {
	case <-ctx.Done():
		userLog.Info("websocket connection closed")
	case err := <-errCh:
		userLog.Info("websocket connection closed", slog.Any("error", err))
	}
}

func (h *WsHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	identityCh chan<- string,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	authenticated := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			errCh <- fmt.Errorf("read message: %w", err)
			cancel()
			return
		}

		if authenticated {
			// 认证后客户端不再发送业务消息，继续读取只为感知断开。
			continue
		}

		identity, err := h.authenticate(message)
		if err != nil {
			writeClose(conn, websocket.ClosePolicyViolation, err.Error())
			errCh <- err
			cancel()
			return
		}

		authenticated = true
		identityCh <- identity
		log.Info("websocket authenticated", slog.String("identity", identity))
	}
}

var (
	errWsAuthRequired  = errors.New("auth required")
	errWsUnauthorized  = errors.New("unauthorized")
	errWsEntryRequired = errors.New("entry required")
)

func (h *WsHandler) authenticate(message []byte) (string, error) {
	var authMsg wsAuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil || authMsg.Type != "auth" || authMsg.Token == "" {
		return "", errWsAuthRequired
	}
	claims, err := h.authService.ValidateToken(authMsg.Token)
	if err != nil || claims.TokenType != auth.TokenTypeAccess {
		return "", errWsUnauthorized
	}
	if !claims.Entered {
		return "", errWsEntryRequired
	}
	return claims.Identity, nil
}

func writeClose(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(wsWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

// pushLoop 是连接上唯一的数据写入方。某一路订阅失败或断开时只记录日志并停止该路推送，
// 连接保持，前端保留最后一次快照。
func (h *WsHandler) pushLoop(
	ctx context.Context,
	conn *websocket.Conn,
	identity string,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			errCh <- fmt.Errorf("write message: %w", err)
			cancel()
			return false
		}
		return true
	}

	profiles, err := h.registry.ObserveProfile(ctx, identity)
	if err != nil {
		log.Error("observe profile failed", slog.Any("error", err))
		if !write(wsErrorMessage{Type: "error", Error: "profile updates unavailable"}) {
			return
		}
	}
	apps, err := h.registry.ObserveApplications(ctx, identity)
	if err != nil {
		log.Error("observe applications failed", slog.Any("error", err))
		if !write(wsErrorMessage{Type: "error", Error: "application updates unavailable"}) {
			return
		}
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case profile, ok := <-profiles:
			if !ok {
				log.Warn("profile stream closed")
				profiles = nil
				continue
			}
			if !write(wsProfileMessage{Type: "profile", Profile: profile}) {
				return
			}
		case list, ok := <-apps:
			if !ok {
				log.Warn("applications stream closed")
				apps = nil
				continue
			}
			if list == nil {
				list = []domain.JobApplication{}
			}
			if !write(wsApplicationsMessage{Type: "applications", Applications: list, Counts: domain.Summarize(list)}) {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}

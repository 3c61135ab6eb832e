package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdala981br/automacao/internal/auth"
)

var (
	// ErrInvalidToken means the refresh token is missing, malformed, expired or revoked.
	ErrInvalidToken = errors.New("invalid or revoked token")
	// ErrIdentityUnavailable means no identity could be established; the caller stays unauthenticated.
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
)

// IdentityStore creates and looks up anonymous identities.
type IdentityStore interface {
	CreateAnonymousUser(ctx context.Context) (string, error)
	UserExists(ctx context.Context, identity string) (bool, error)
}

// BotReleaser tears down an identity's background work on exit and allows it
// again on entry.
type BotReleaser interface {
	Release(ctx context.Context, identity string) error
	Admit(identity string)
}

// Revocations tracks refresh tokens that must no longer be accepted.
type Revocations interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// State 是会话的可观察状态。只有 Identity 非空且 Entered 为 true 时才显示主界面。
// AuthPending 由前端在后台登录进行中时置位；服务端返回的状态都已完成认证，恒为 false。
type State struct {
	Identity    string `json:"identity,omitempty"`
	AuthPending bool   `json:"authPending"`
	Entered     bool   `json:"entered"`
}

// ShellVisible reports whether the authenticated shell may be shown.
func (s State) ShellVisible() bool {
	return s.Identity != "" && s.Entered
}

// StateFromClaims derives the session state carried by a validated token.
func StateFromClaims(claims *auth.TokenClaims) State {
	if claims == nil {
		return State{}
	}
	return State{Identity: claims.Identity, Entered: claims.Entered}
}

// Result is what a successful sign-in, entry or refresh hands back.
type Result struct {
	State  State
	Tokens auth.TokenPair
	// Created is true when a new anonymous identity was minted.
	Created bool
}

// Manager 管理匿名身份的建立、入口确认与退出。
type Manager struct {
	auth    *auth.AuthService
	users   IdentityStore
	bots    BotReleaser
	revoked Revocations
	logger  *slog.Logger
}

// NewManager wires the session manager.
func NewManager(authService *auth.AuthService, users IdentityStore, bots BotReleaser, revoked Revocations, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		auth:    authService,
		users:   users,
		bots:    bots,
		revoked: revoked,
		logger:  logger,
	}
}

// SignIn 静默认证：复用有效刷新令牌中的身份，否则创建新的匿名身份。
// 颁发的令牌 entered 恒为 false，回访用户仍需经过入口页。
func (m *Manager) SignIn(ctx context.Context, refreshToken string) (Result, error) {
	return m.establish(ctx, refreshToken, false)
}

// Enter 显式进入：建立或复用身份并颁发 entered=true 的令牌。
// 携带有效令牌重复调用不会创建第二个身份。
func (m *Manager) Enter(ctx context.Context, refreshToken string) (Result, error) {
	res, err := m.establish(ctx, refreshToken, true)
	if err != nil {
		return Result{}, err
	}
	m.bots.Admit(res.State.Identity)
	return res, nil
}

// Refresh 校验刷新令牌并轮换，entered 声明保持不变。
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Result, error) {
	claims, err := m.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return Result{}, err
	}

	exists, err := m.users.UserExists(ctx, claims.Identity)
	if err != nil {
		m.logger.Error("refresh identity lookup failed", slog.Any("error", err))
		return Result{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if !exists {
		return Result{}, fmt.Errorf("%w: identity %s no longer exists", ErrInvalidToken, claims.Identity)
	}

	pair, err := m.auth.GenerateTokenPair(claims.Identity, claims.Entered)
	if err != nil {
		return Result{}, fmt.Errorf("generate token pair: %w", err)
	}
	// 旋转旧刷新令牌，防止重复使用。
	if err := m.revoked.Revoke(ctx, claims.ID, ttlUntil(claims, m.auth.RefreshTokenTTL())); err != nil {
		return Result{}, err
	}

	return Result{
		State:  State{Identity: claims.Identity, Entered: claims.Entered},
		Tokens: pair,
	}, nil
}

// Exit 退出会话：先停止并等待该身份的机器人，再吊销刷新令牌。
// 返回后不会再有该身份的投递记录写入。
func (m *Manager) Exit(ctx context.Context, identity, refreshToken string) error {
	log := m.logger.With(slog.String("identity", identity))

	if err := m.bots.Release(ctx, identity); err != nil {
		log.Error("release bot on exit failed", slog.Any("error", err))
		return err
	}

	if refreshToken == "" {
		return nil
	}
	claims, err := m.verifyRefresh(ctx, refreshToken)
	if err != nil {
		// 已经失效的令牌无需再吊销。
		log.Info("exit with unusable refresh token", slog.Any("error", err))
		return nil
	}
	if claims.Identity != identity {
		log.Warn("exit refresh token belongs to another identity")
		return nil
	}
	if err := m.revoked.Revoke(ctx, claims.ID, ttlUntil(claims, m.auth.RefreshTokenTTL())); err != nil {
		log.Error("revoke refresh token on exit failed", slog.Any("error", err))
		return err
	}
	log.Info("session exited")
	return nil
}

func (m *Manager) establish(ctx context.Context, refreshToken string, entered bool) (Result, error) {
	identity, err := m.reuse(ctx, refreshToken)
	if err != nil {
		return Result{}, err
	}

	created := false
	if identity == "" {
		identity, err = m.users.CreateAnonymousUser(ctx)
		if err != nil {
			m.logger.Error("anonymous sign-in failed", slog.Any("error", err))
			return Result{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		created = true
		m.logger.Info("anonymous identity created", slog.String("identity", identity))
	}

	pair, err := m.auth.GenerateTokenPair(identity, entered)
	if err != nil {
		return Result{}, fmt.Errorf("generate token pair: %w", err)
	}
	return Result{
		State:   State{Identity: identity, Entered: entered},
		Tokens:  pair,
		Created: created,
	}, nil
}

// reuse returns the identity of a usable refresh token, or "" when a new one must be minted.
func (m *Manager) reuse(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", nil
	}
	claims, err := m.verifyRefresh(ctx, refreshToken)
	if errors.Is(err, ErrInvalidToken) {
		return "", nil
	}
	if err != nil {
		m.logger.Error("refresh token check failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	exists, err := m.users.UserExists(ctx, claims.Identity)
	if err != nil {
		m.logger.Error("identity lookup failed", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if !exists {
		return "", nil
	}
	return claims.Identity, nil
}

func (m *Manager) verifyRefresh(ctx context.Context, refreshToken string) (*auth.TokenClaims, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing", ErrInvalidToken)
	}
	claims, err := m.auth.ValidateToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TokenType != auth.TokenTypeRefresh {
		return nil, fmt.Errorf("%w: wrong token type %s", ErrInvalidToken, claims.TokenType)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}

	revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

func ttlUntil(claims *auth.TokenClaims, fallback time.Duration) time.Duration {
	if claims.ExpiresAt == nil {
		return fallback
	}
	return time.Until(claims.ExpiresAt.Time)
}

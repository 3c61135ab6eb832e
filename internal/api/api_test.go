package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/abdala981br/automacao/internal/auth"
	"github.com/abdala981br/automacao/internal/auth/authtest"
	"github.com/abdala981br/automacao/internal/bot"
	"github.com/abdala981br/automacao/internal/config"
	"github.com/abdala981br/automacao/internal/database"
	"github.com/abdala981br/automacao/internal/domain"
	"github.com/abdala981br/automacao/internal/errcode"
	"github.com/abdala981br/automacao/internal/notify"
	"github.com/abdala981br/automacao/internal/registry"
	"github.com/abdala981br/automacao/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	auth   *auth.AuthService
	store  *database.Store
	bots   *bot.Manager
	clock  *clockwork.FakeClock
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		API:  config.APIConfig{InternalSecret: "s3cret"},
		Auth: config.AuthConfig{AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: 24 * time.Hour, SignInRateLimitPerHour: 100},
		Bot:  config.BotConfig{TickInterval: 4 * time.Second},
	}
	if mutate != nil {
		mutate(cfg)
	}

	authService := authtest.NewService(t)
	store := database.NewStore(db, nil)
	reg := registry.New(store, notify.NewRedisFeed(client, nil), nil, nil)
	clock := clockwork.NewFakeClock()
	bots := bot.NewManager(reg, cfg.Bot.TickInterval, clock, nil)
	t.Cleanup(func() { _ = bots.Close(context.Background()) })
	sessions := session.NewManager(authService, store, bots, session.NewRedisRevocations(client), nil)

	router := NewRouter(nil)
	RegisterRoutes(router, Dependencies{
		Config:      cfg,
		AuthService: authService,
		Sessions:    sessions,
		Registry:    reg,
		Bots:        bots,
		Redis:       client,
	})

	return &testServer{router: router, auth: authService, store: store, bots: bots, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, access string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) (tokenResponse, *http.Cookie) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			return resp, c
		}
	}
	t.Fatal("refresh cookie not set")
	return resp, nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var body struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

// enter signs in and enters, returning an entered access token and its identity.
func (s *testServer) enter(t *testing.T) (string, string) {
	t.Helper()
	signed, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil))
	entered, _ := decodeToken(t, s.do(t, http.MethodPost, "/v1/session/enter", "", nil, cookie))
	require.Equal(t, signed.Session.Identity, entered.Session.Identity)
	return entered.AccessToken, entered.Session.Identity
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSignInThenEnterUnlocksShell(t *testing.T) {
	s := newTestServer(t, nil)

	signed, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil))
	assert.NotEmpty(t, signed.Session.Identity)
	assert.False(t, signed.Session.Entered)
	assert.Equal(t, "Bearer", signed.TokenType)

	rec := s.do(t, http.MethodGet, "/v1/profile", signed.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errcode.EntryRequired, errorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/v1/session", signed.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identity":"`+signed.Session.Identity+`","authPending":false,"entered":false}`, rec.Body.String())

	entered, _ := decodeToken(t, s.do(t, http.MethodPost, "/v1/session/enter", "", nil, cookie))
	assert.Equal(t, signed.Session.Identity, entered.Session.Identity)
	assert.True(t, entered.Session.Entered)

	rec = s.do(t, http.MethodGet, "/v1/profile", entered.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile domain.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, domain.DefaultProfile(), profile)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/v1/profile", "/v1/applications", "/v1/bot", "/v1/session"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	_, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil))
	rec := s.do(t, http.MethodGet, "/v1/profile", cookie.Value, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh token must not authorize requests")
}

func TestSaveProfileOverwritesWholeRecord(t *testing.T) {
	s := newTestServer(t, nil)
	access, _ := s.enter(t)

	first := domain.UserProfile{FullName: "Ana", Email: "ana@example.com", Skills: "Go"}
	rec := s.do(t, http.MethodPut, "/v1/profile", access, first)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	second := domain.UserProfile{FullName: "Ana Souza"}
	rec = s.do(t, http.MethodPut, "/v1/profile", access, second)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/profile", access, nil)
	var got domain.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, second, got)
}

func TestApplicationsListAndResolve(t *testing.T) {
	s := newTestServer(t, nil)
	access, identity := s.enter(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pending, err := s.store.CreateApplication(ctx, identity, domain.JobApplication{
		Company: "Nubank", Role: "Tech Lead", Platform: domain.PlatformLinkedIn,
		Date: base, Detail: domain.NeedsInput{Question: registry.NeedsInputPrompt},
	})
	require.NoError(t, err)
	applied, err := s.store.CreateApplication(ctx, identity, domain.JobApplication{
		Company: "Stone", Role: "Desenvolvedor Backend", Platform: domain.PlatformGupy,
		Date: base.Add(time.Hour), Detail: domain.Applied{Notes: "Candidatura enviada"},
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/v1/applications", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list applicationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Applications, 2)
	assert.Equal(t, applied.ID, list.Applications[0].ID, "newest first")
	assert.Equal(t, domain.Counts{Total: 2, Applied: 1, NeedsInput: 1}, list.Counts)

	rec = s.do(t, http.MethodGet, "/v1/applications?status=needs_input", access, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Applications, 1)
	assert.Equal(t, pending.ID, list.Applications[0].ID)
	assert.Equal(t, 2, list.Counts.Total, "counts cover the full list")

	rec = s.do(t, http.MethodGet, "/v1/applications?status=bogus", access, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/v1/applications/" + pending.ID + "/resolve"
	rec = s.do(t, http.MethodPost, path, access, map[string]string{"answer": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path, access, map[string]string{"answer": "abc123"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, path, access, map[string]string{"answer": "again"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errcode.NotAwaitingInput, errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/v1/applications/"+uuid.NewString()+"/resolve", access, map[string]string{"answer": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/applications", access, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, domain.Counts{Total: 2, Applied: 2}, list.Counts)
	for _, app := range list.Applications {
		if app.ID == pending.ID {
			assert.Equal(t, `Respondido manualmente: "abc123"`, app.Notes())
			assert.Empty(t, app.QuestionToAnswer())
		}
	}
}

func TestResolveIsScopedToIdentity(t *testing.T) {
	s := newTestServer(t, nil)
	_, owner := s.enter(t)
	other, _ := s.enter(t)

	app, err := s.store.CreateApplication(context.Background(), owner, domain.JobApplication{
		Company: "PicPay", Role: "Tech Lead", Platform: domain.PlatformIndeed,
		Date: time.Now(), Detail: domain.NeedsInput{Question: registry.NeedsInputPrompt},
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/v1/applications/"+app.ID+"/resolve", other, map[string]string{"answer": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBotStartStopAndLogout(t *testing.T) {
	s := newTestServer(t, nil)
	signed, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil))
	entered, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/session/enter", "", nil, cookie))
	access := entered.AccessToken
	identity := signed.Session.Identity

	var status botStatusResponse
	rec := s.do(t, http.MethodPost, "/v1/bot/start", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, botStatusResponse{Running: true, Changed: true, PeriodSeconds: 4}, status)

	rec = s.do(t, http.MethodPost, "/v1/bot/start", access, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Changed)
	assert.True(t, s.bots.Running(identity))

	rec = s.do(t, http.MethodPost, "/v1/bot/stop", access, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, botStatusResponse{Running: false, Changed: true, PeriodSeconds: 4}, status)

	rec = s.do(t, http.MethodPost, "/v1/bot/start", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", access, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.bots.Running(identity))
	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshTokenCookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 访问令牌尚未过期，但已退出的身份不能再启动机器人。
	rec = s.do(t, http.MethodPost, "/v1/bot/start", access, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errcode.EntryRequired, errorCode(t, rec))
	assert.False(t, s.bots.Running(identity))
}

func TestRefreshRotatesAndKeepsEntered(t *testing.T) {
	s := newTestServer(t, nil)
	_, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil))
	entered, cookie := decodeToken(t, s.do(t, http.MethodPost, "/v1/session/enter", "", nil, cookie))

	refreshed, next := decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refresh_token": cookie.Value}))
	assert.Equal(t, entered.Session, refreshed.Session)
	assert.NotEqual(t, cookie.Value, next.Value)

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignInRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Auth.SignInRateLimitPerHour = 2 })

	var cookie *http.Cookie
	for i := 0; i < 2; i++ {
		_, cookie = decodeToken(t, s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil))
	}
	rec := s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, errcode.RateLimited, errorCode(t, rec))

	// 携带刷新令牌的回访不会新建身份，不受限制。
	rec = s.do(t, http.MethodPost, "/v1/auth/anonymous", "", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInternalMetricsRequiresSecret(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/internal/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	ok := httptest.NewRecorder()
	s.router.ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Contains(t, ok.Body.String(), "automacao_http_requests_total")

	closed := newTestServer(t, func(cfg *config.Config) { cfg.API.InternalSecret = "" })
	rec = closed.do(t, http.MethodGet, "/internal/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCorrelationIDEchoed(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, strings.TrimSpace(rec.Header().Get("X-Correlation-ID")))
}

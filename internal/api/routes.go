package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/abdala981br/automacao/internal/api/middleware"
	"github.com/abdala981br/automacao/internal/auth"
	"github.com/abdala981br/automacao/internal/config"
	"github.com/abdala981br/automacao/internal/metrics"
)

// Dependencies 汇总路由需要的服务。
type Dependencies struct {
	Config      *config.Config
	AuthService *auth.AuthService
	Sessions    SessionService
	Registry    RegistryService
	Bots        BotService
	Redis       redis.UniversalClient
	Logger      *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	authHandler := NewAuthHandler(
		deps.Sessions,
		deps.Redis,
		deps.Logger,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.SignInRateLimitPerHour,
		cfg.Auth.CookieDomain,
	)
	profileHandler := NewProfileHandler(deps.Registry)
	applicationHandler := NewApplicationHandler(deps.Registry)
	botHandler := NewBotHandler(deps.Bots, cfg.Bot.TickInterval)
	wsHandler := NewWsHandler(deps.Registry, deps.AuthService, deps.Logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	enteredGate := middleware.RequireEnteredMiddleware()

	router.GET("/internal/metrics", middleware.InternalSecretMiddleware(cfg.API.InternalSecret), metrics.Handler())

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/anonymous", authHandler.SignIn)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		v1.POST("/session/enter", authHandler.Enter)
		v1.GET("/session", authMiddleware, authHandler.Session)

		shell := v1.Group("")
		shell.Use(authMiddleware, enteredGate)
		{
			shell.GET("/profile", profileHandler.GetProfile)
			shell.PUT("/profile", profileHandler.SaveProfile)

			shell.GET("/applications", applicationHandler.ListApplications)
			shell.POST("/applications/:id/resolve", applicationHandler.Resolve)

			shell.GET("/bot", botHandler.Status)
			shell.POST("/bot/start", botHandler.Start)
			shell.POST("/bot/stop", botHandler.Stop)
		}
	}
}

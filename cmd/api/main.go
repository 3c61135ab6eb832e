package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/abdala981br/automacao/internal/api"
	"github.com/abdala981br/automacao/internal/auth"
	"github.com/abdala981br/automacao/internal/bot"
	"github.com/abdala981br/automacao/internal/config"
	"github.com/abdala981br/automacao/internal/database"
	"github.com/abdala981br/automacao/internal/notify"
	"github.com/abdala981br/automacao/internal/registry"
	"github.com/abdala981br/automacao/internal/session"
)

func main() {
	cfg := config.MustLoad()

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("api bootstrapped",
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("redis_addr", cfg.Redis.Addr()),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database migrated")
	store := database.NewStore(db, logger)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	authService, err := auth.NewAuthService(
		[]byte(cfg.Auth.PrivateKeyPEM),
		[]byte(cfg.Auth.PublicKeyPEM),
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	feed := notify.NewRedisFeed(redisClient, logger)
	reg := registry.New(store, feed, registry.NewGenerator(nil, nil), logger)
	bots := bot.NewManager(reg, cfg.Bot.TickInterval, clockwork.NewRealClock(), logger)
	sessions := session.NewManager(authService, store, bots, session.NewRedisRevocations(redisClient), logger)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:      cfg,
		AuthService: authService,
		Sessions:    sessions,
		Registry:    reg,
		Bots:        bots,
		Redis:       redisClient,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.API.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", slog.Any("error", err))
	}
	// 所有机器人退出后才关闭存储连接，保证不会有写入落在关闭之后。
	if err := bots.Close(shutdownCtx); err != nil {
		logger.Error("bot shutdown failed", slog.Any("error", err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("api stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

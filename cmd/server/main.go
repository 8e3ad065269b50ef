package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/duochat/internal/api"
	"github.com/lalith-99/duochat/internal/auth"
	"github.com/lalith-99/duochat/internal/chat"
	"github.com/lalith-99/duochat/internal/config"
	"github.com/lalith-99/duochat/internal/db"
	"github.com/lalith-99/duochat/internal/observ"
	"github.com/lalith-99/duochat/internal/realtime"
	"github.com/lalith-99/duochat/internal/repository"
	"github.com/lalith-99/duochat/internal/repository/memory"
	"github.com/lalith-99/duochat/internal/repository/postgres"
	"github.com/lalith-99/duochat/internal/repository/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Storage
	//
	// Postgres when DATABASE_URL is set, otherwise an in-memory store
	// that is gone on restart.
	// ---------------------------------------------------------------
	var (
		store  repository.Store
		health func(*gin.Context) error
	)
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()
		store = postgres.NewStore(database.Pool())
		health = func(c *gin.Context) error { return database.Health(c.Request.Context()) }
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = memory.NewStore()
	}

	var denylist repository.TokenDenylist
	if cfg.RedisURL != "" {
		redisDenylist, client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		denylist = redisDenylist
		logger.Info("token revocation enabled")
	}

	// ---------------------------------------------------------------
	// 3. Auth and realtime core
	// ---------------------------------------------------------------
	var codec auth.Codec
	switch cfg.AuthScheme {
	case config.AuthSchemeBasic:
		logger.Warn("AUTH_SCHEME=basic: tokens are reversible and never expire")
		codec = auth.BasicCodec{}
	default:
		codec = auth.NewJWTCodec(cfg.JWTSecret, cfg.TokenTTL)
	}
	validator := auth.NewValidator(
		codec,
		auth.NewAllowlist(cfg.SharedPassword, cfg.AdminUsername, cfg.AdminPassword),
		store,
		denylist,
	)

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, logger)
	tracker := realtime.NewTracker(registry, broadcaster, store, logger)
	if _, err := tracker.ResetStale(ctx); err != nil {
		logger.Warn("failed to clear stale online flags", zap.Error(err))
	}
	wsHandler := realtime.NewHandler(validator, tracker, broadcaster, realtime.HandlerConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		SendTimeout:    cfg.SendTimeout,
	}, logger)

	service := chat.NewService(store, broadcaster, cfg.HistoryLimit, logger)

	// ---------------------------------------------------------------
	// 4. HTTP
	// ---------------------------------------------------------------
	uploads, err := api.NewUploadHandler(cfg.UploadDir, cfg.MaxUploadBytes, logger)
	if err != nil {
		return err
	}
	router := api.NewRouter(api.Routes{
		Validator: validator,
		Auth:      api.NewAuthHandler(store, validator, tracker, logger),
		Users:     api.NewUserHandler(store, registry, logger),
		Messages:  api.NewMessageHandler(service, logger),
		Uploads:   uploads,
		UploadDir: cfg.UploadDir,
		WebSocket: wsHandler.Serve,
		Health:    health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting duochat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("auth_scheme", cfg.AuthScheme),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// ---------------------------------------------------------------
	// 5. Graceful shutdown
	//
	// Websockets are hijacked connections that http.Server.Shutdown
	// does not track, so they are closed first. Their last presence
	// writes land before the store is closed by the defers above.
	// ---------------------------------------------------------------
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("stopped",
		zap.Uint64("events_sent", broadcaster.Sent()),
		zap.Uint64("delivery_failures", broadcaster.Failures()),
	)
	return nil
}

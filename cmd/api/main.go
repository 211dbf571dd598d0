package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"

	"github.com/uww-saigusa/messageboard/internal/app/migrate"
	"github.com/uww-saigusa/messageboard/internal/cache"
	httpx "github.com/uww-saigusa/messageboard/internal/http"
	"github.com/uww-saigusa/messageboard/internal/repository"
	"github.com/uww-saigusa/messageboard/internal/repository/memory"
	"github.com/uww-saigusa/messageboard/internal/repository/postgres"
	"github.com/uww-saigusa/messageboard/internal/service/auth"
	"github.com/uww-saigusa/messageboard/internal/service/message"
	"github.com/uww-saigusa/messageboard/internal/ws"
	"github.com/uww-saigusa/messageboard/pkg/config"
	"github.com/uww-saigusa/messageboard/pkg/crypto"
	jwtpkg "github.com/uww-saigusa/messageboard/pkg/jwt"
	"github.com/uww-saigusa/messageboard/pkg/logger"
)

func main() {
	dotenvErr := config.LoadDotEnv()
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if dotenvErr != nil {
		log.Warn("failed to read .env file", "error", dotenvErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	issuer, err := jwtpkg.NewIssuer(jwtpkg.Config{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		DefaultTTL: cfg.DefaultTokenTTL,
	})
	if err != nil {
		log.Error("failed to configure token issuer", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(log)
	defer hub.Close()

	var pages message.PageCache
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		redisPages, err := cache.NewRedisPages(addr, cfg.CacheRedisPass, cfg.CacheRedisDB, cfg.CacheTTL, log)
		if err != nil {
			log.Warn("redis page cache unavailable", "error", err)
		} else {
			defer redisPages.Close()
			pages = redisPages
		}
	}

	authSvc := auth.New(store, crypto.NewHasher(cfg.BcryptCost), issuer, log, cfg)
	messageSvc := message.New(store, pages, hub, log, cfg)

	router := httpx.NewRouter(log, authSvc, messageSvc, hub, httpx.Options{
		RequireAuthForUpdate: cfg.RequireAuthForUpdate,
		DBHealth:             store.Ping,
	})
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := runner.Ping(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}
	if err := runner.Ensure(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}
	return postgres.New(pool), runner.Close, nil
}

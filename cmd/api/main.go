package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pin-ledger/config"
	httpHandler "pin-ledger/internal/adapter/http/handler"
	"pin-ledger/internal/adapter/storage"
	"pin-ledger/internal/adapter/storage/memory"
	redisStorage "pin-ledger/internal/adapter/storage/redis"
	"pin-ledger/internal/core/ports"
	"pin-ledger/internal/service"
	"pin-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Msg("Starting PIN ledger")

	ctx := context.Background()

	// Open the account store
	backend, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open account store")
	}
	defer func() {
		if err := backend.Store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close account store")
		}
	}()
	healthCheckers := []ports.HealthChecker{backend.Health}

	// Redis backs sessions, rate limits, idempotent replay and the
	// distributed locker. Without it those features are off.
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	// Per-account locking
	var locker ports.AccountLocker
	switch cfg.Lock.Driver {
	case "local":
		locker = memory.NewKeyedLocker()
	case "redis":
		if rdb == nil {
			log.Fatal().Msg("lock.driver=redis requires redis.enabled")
		}
		locker, err = redisStorage.NewAccountLocker(rdb, redisStorage.LockOptions{
			Expiry:     cfg.Lock.Expiry,
			Tries:      cfg.Lock.Tries,
			RetryDelay: cfg.Lock.RetryDelay,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create distributed locker")
		}
	default:
		log.Fatal().Str("driver", cfg.Lock.Driver).Msg("Unknown lock driver")
	}

	// Initialize core services
	hashSvc := service.NewArgon2HashService(cfg.Hash)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	ledgerSvc := service.NewLedgerService(backend.Store, locker, hashSvc, cfg.Ledger, log)
	reportingSvc := service.NewReportingService(ledgerSvc)
	auditSvc := service.NewAuditService(backend.Audit, log)
	defer auditSvc.Wait()

	deps := httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		AuditSvc:       auditSvc,
		HealthCheckers: healthCheckers,
		Logger:         log,
	}
	var sessions ports.SessionStore
	if rdb != nil {
		sessions = redisStorage.NewSessionStore(rdb)
		deps.Sessions = sessions
		deps.RateLimiter = redisStorage.NewRateLimitStore(rdb)
		deps.IdempotencyCache = redisStorage.NewIdempotencyCache(rdb)
	}
	deps.AuthSvc = service.NewAuthService(ledgerSvc, tokenSvc, sessions, log)

	// Setup Gin router with all routes
	gin.SetMode(cfg.Server.Mode)
	router := httpHandler.SetupRouter(deps)

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

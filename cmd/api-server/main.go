package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/weili-projects/reservation-api/internal/api"
	"github.com/weili-projects/reservation-api/internal/appointment"
	"github.com/weili-projects/reservation-api/internal/config"
	"github.com/weili-projects/reservation-api/internal/db"
	"github.com/weili-projects/reservation-api/internal/logging"
	redisclient "github.com/weili-projects/reservation-api/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api-server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Bool("slot_lock", cfg.SlotLockEnabled),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolConfig{})
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	if cfg.MigrateOnStart {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	checks := []api.DependencyCheck{
		{Name: "postgres", Critical: true, Check: pgPool.Ping},
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")
		checks = append(checks, api.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	opts := []appointment.Option{}
	if cfg.SlotLockEnabled {
		opts = append(opts, appointment.WithLocker(redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)))
	}

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, logger.Named("appointment"), opts...)

	var limiter api.Limiter
	switch {
	case cfg.RateLimitRPS <= 0:
	case rdb != nil:
		limit := int(cfg.RateLimitRPS * cfg.RateLimitWindow.Seconds())
		limiter = redisclient.NewWindowCounter(rdb, limit, cfg.RateLimitWindow, "rl:api")
	default:
		mem := api.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		mem.StartJanitor(rootCtx, 2*time.Minute)
		limiter = mem
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service: svc,
			Logger:  logger.Named("http"),
			Limiter: limiter,
			Checks:  checks,
			Env:     cfg.Env,
			Version: version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

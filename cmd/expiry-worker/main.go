package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/medvault-scheduling/internal/appointment"
	"github.com/hackgods/medvault-scheduling/internal/config"
	"github.com/hackgods/medvault-scheduling/internal/db"
	"github.com/hackgods/medvault-scheduling/internal/logging"
	redisclient "github.com/hackgods/medvault-scheduling/internal/redis"
)

// sweepLockName guards the sweep so only one worker replica runs it per tick.
const sweepLockName = "reservation-sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg).Named("expiry-worker")
	defer func() { _ = logger.Sync() }()

	logger.Info("expiry-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	cache := redisclient.NewScheduleCache(rdb, cfg.ScheduleCacheTTL, logger)
	svc := appointment.NewService(repo, cache, logger, cfg)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, svc, locker, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, locker, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, locker redisclient.Locker, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	var cleared int

	err := locker.WithLock(runCtx, sweepLockName, func(ctx context.Context) error {
		var err error
		cleared, err = svc.ReleaseExpiredReservations(ctx)
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		logger.Debug("another worker holds the sweep lock, skipping")
	case err != nil:
		logger.Error("expiry run error", zap.Error(err))
	default:
		logger.Info("expiry run complete",
			zap.Int("cleared", cleared),
			zap.Duration("duration", time.Since(start)))
	}
}

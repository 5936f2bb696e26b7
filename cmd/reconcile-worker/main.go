package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
	"github.com/medgrid/appointment-pipeline/internal/bus"
	"github.com/medgrid/appointment-pipeline/internal/config"
	"github.com/medgrid/appointment-pipeline/internal/db"
	"github.com/medgrid/appointment-pipeline/internal/logging"
)

// The reconcile worker sweeps pending appointments that are older than the
// configured age and republishes them. An intake request that stored its
// record but failed to publish leaves exactly this state behind.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	logger.Info("reconcile-worker starting",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.ReconcileInterval),
		zap.Duration("pending_max_age", cfg.PendingMaxAge),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to postgres")

	rdb, err := bus.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to redis")

	store := appointment.NewPgStore(pgPool)
	publisher := bus.NewPublisher(rdb, logger)
	svc := appointment.NewService(store, publisher, logger)

	runOnce(rootCtx, svc, cfg.PendingMaxAge, logger)

	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.PendingMaxAge, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, maxAge time.Duration, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.RepublishStalePending(runCtx, maxAge)
	if err != nil {
		logger.Error("reconcile run error", zap.Error(err))
		return
	}
	logger.Info("reconcile run complete",
		zap.Int("republished", n),
		zap.Duration("took", time.Since(start)),
	)
}

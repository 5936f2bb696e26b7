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
	"github.com/medgrid/appointment-pipeline/internal/processor"
)

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

	logger.Info("notification-worker starting", zap.String("env", cfg.Env))

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
	if err := store.Migrate(rootCtx); err != nil {
		logger.Fatal("migrate appointment store", zap.Error(err))
	}

	proc := processor.NewNotification(store, logger)

	consumer := bus.NewConsumer(rdb, bus.ConsumerOptions{
		Stream:        bus.StreamCompleted,
		Group:         cfg.ConsumerGroup + "-notifications",
		Consumer:      cfg.ConsumerName,
		BatchSize:     cfg.BatchSize,
		Block:         cfg.BlockTimeout,
		ClaimMinIdle:  cfg.ClaimMinIdle,
		MaxDeliveries: cfg.MaxDeliveries,
	}, proc.HandleMessage, logger)

	if err := consumer.Run(rootCtx); err != nil {
		logger.Fatal("consumer error", zap.Error(err))
	}

	logger.Info("notification-worker stopped")
}

package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medgrid/appointment-pipeline/internal/appointment"
	"github.com/medgrid/appointment-pipeline/internal/bus"
	"github.com/medgrid/appointment-pipeline/internal/config"
	"github.com/medgrid/appointment-pipeline/internal/db"
	"github.com/medgrid/appointment-pipeline/internal/detail"
	"github.com/medgrid/appointment-pipeline/internal/logging"
	"github.com/medgrid/appointment-pipeline/internal/processor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	country := appointment.CountryISO(cfg.Country)
	if !country.Valid() {
		log.Fatalf("COUNTRY must be PE or CL, got %q", cfg.Country)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	logger.Info("country-worker starting",
		zap.String("env", cfg.Env),
		zap.String("country", string(country)),
		zap.Bool("connect_country_db", cfg.ConnectCountryDB),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// The relational store is optional: deployments that only route or
	// inspect messages run without it and the processor reports the gap
	// per message.
	var details processor.DetailStore
	if cfg.ConnectCountryDB {
		mysqlCtx, cancelMySQL := context.WithTimeout(rootCtx, 10*time.Second)
		gdb, err := db.ConnectMySQL(mysqlCtx, cfg.MySQLDSN(string(country)))
		cancelMySQL()
		if err != nil {
			logger.Fatal("mysql connection error", zap.Error(err))
		}
		store := detail.NewStore(gdb)
		if err := store.Migrate(); err != nil {
			logger.Fatal("migrate detail store", zap.Error(err))
		}
		details = store
		logger.Info("connected to country database", zap.String("country", string(country)))
	}

	publisher := bus.NewPublisher(rdb, logger)
	proc := processor.NewCountry(country, details, publisher, cfg.EventBusName, logger)

	consumer := bus.NewConsumer(rdb, bus.ConsumerOptions{
		Stream:        bus.StreamForCountry(country),
		Group:         cfg.ConsumerGroup + "-" + strings.ToLower(string(country)),
		Consumer:      cfg.ConsumerName,
		BatchSize:     cfg.BatchSize,
		Block:         cfg.BlockTimeout,
		ClaimMinIdle:  cfg.ClaimMinIdle,
		MaxDeliveries: cfg.MaxDeliveries,
	}, proc.HandleMessage, logger)

	if err := consumer.Run(rootCtx); err != nil {
		logger.Fatal("consumer error", zap.Error(err))
	}

	logger.Info("country-worker stopped")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/etiktak/etiktak_backend/internal/config"
	"github.com/etiktak/etiktak_backend/internal/infra"
	"github.com/etiktak/etiktak_backend/internal/logging"
	"github.com/etiktak/etiktak_backend/internal/notification"
	"github.com/etiktak/etiktak_backend/internal/server"
	"github.com/etiktak/etiktak_backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := store.NewPostgresStore(db).EnsureSchema(ctx); err != nil {
			logger.Error("ensure schema", "error", err)
			os.Exit(1)
		}
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	backends := server.Backends{DB: db, Cache: cache}
	var reports *kgo.Client
	if cfg.KafkaEnabled() {
		producer, err := infra.NewKafkaProducer(ctx, cfg.KafkaBrokers)
		if err != nil {
			logger.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := infra.EnsureTopics(ctx, producer, cfg.KafkaSmsTopic, cfg.KafkaReportTopic); err != nil {
			logger.Warn("ensure kafka topics", "error", err)
		}
		backends.Sender = notification.NewKafkaSender(producer, cfg.KafkaSmsTopic)

		reports, err = infra.NewKafkaConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaReportTopic)
		if err != nil {
			logger.Error("connect kafka consumer", "error", err)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, backends, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen()
	})
	if reports != nil {
		consumer := notification.NewReportConsumer(reports, srv.Facade().ReportDeliveryFailure, logger)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		if reports != nil {
			reports.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

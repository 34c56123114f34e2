package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/infra/credentials"
	"vidgen/internal/ledger"
	"vidgen/internal/mediasink"
	"vidgen/internal/providers/video"
	"vidgen/internal/reconcile"
	"vidgen/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "sweeper")
	if cfg.LedgerBackend != infra.LedgerPostgres {
		logger.Fatal().Str("backend", cfg.LedgerBackend).Msg("sweeper: requires the postgres ledger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)
	jobs := ledger.NewPostgres(runner)

	for provider, err := range credentials.NewStore(runner).Resolve(ctx, cfg) {
		logger.Warn().Err(err).Str("provider", string(provider)).Msg("sweeper: failed to load provider key from store")
	}
	adapters := video.FromConfig(cfg, &logger)

	var sink domain.MediaSink = mediasink.NewLog(&logger)
	if cfg.AMQPURL != "" {
		amqpSink, err := mediasink.DialAMQP(mediasink.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		}, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("sweeper: media sink connection failed")
		}
		defer amqpSink.Close()
		sink = amqpSink
	}

	gateway := reconcile.New(jobs, adapters, sink, reconcile.Config{WebhookSecret: cfg.WebhookSecret}, &logger, nil)
	sweeper := sweep.New(jobs, gateway, sweep.Config{
		StallTimeout: cfg.StallTimeout,
		Interval:     cfg.SweepInterval,
		Batch:        cfg.SweepBatch,
		PollOnly:     video.PollOnly(adapters),
	}, &logger, nil)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("sweeper: redis connection failed")
		}
		sweeper.WithLease(sweep.NewRedisLease(rdb, cfg.SweepLeaseKey, cfg.SweepInterval))
		logger.Info().Str("key", cfg.SweepLeaseKey).Msg("sweeper: sharing schedule through redis lease")
	}

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("sweeper: stopped with error")
	}
	logger.Info().Msg("sweeper: stopped")
}

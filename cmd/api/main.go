package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vidgen/internal/dispatch"
	"vidgen/internal/domain"
	"vidgen/internal/http/handlers"
	httpapi "vidgen/internal/http/httpapi"
	"vidgen/internal/infra"
	"vidgen/internal/infra/credentials"
	"vidgen/internal/ledger"
	"vidgen/internal/mediasink"
	"vidgen/internal/providers/video"
	"vidgen/internal/quota"
	"vidgen/internal/reconcile"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		jobs domain.JobLedger
		gate domain.QuotaGate = quota.Unlimited{}
		ping func(context.Context) error
	)
	switch cfg.LedgerBackend {
	case infra.LedgerMemory:
		logger.Warn().Msg("api: using in-memory ledger, jobs do not survive restarts")
		jobs = ledger.NewMemory()
	default:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: db connection failed")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		jobs = ledger.NewPostgres(runner)
		ping = pool.Ping

		for provider, err := range credentials.NewStore(runner).Resolve(ctx, cfg) {
			logger.Warn().Err(err).Str("provider", string(provider)).Msg("api: failed to load provider key from store")
		}
		if cfg.QuotaMode == infra.QuotaSQL {
			gate = quota.NewSQLGate(runner, cfg.QuotaDailyDefault)
		}
	}

	adapters := video.FromConfig(cfg, &logger)
	if len(adapters) == 0 {
		logger.Warn().Msg("api: no video provider configured, dispatch will fail")
	}

	var sink domain.MediaSink = mediasink.NewLog(&logger)
	if cfg.AMQPURL != "" {
		amqpSink, err := mediasink.DialAMQP(mediasink.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		}, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: media sink connection failed")
		}
		defer amqpSink.Close()
		sink = amqpSink
	}

	metrics := infra.NewMetrics()
	app := &handlers.App{
		Jobs: jobs,
		Dispatcher: dispatch.New(jobs, gate, adapters, dispatch.Config{
			PrimaryTimeout: cfg.PrimaryTimeout,
			WebhookURL:     cfg.WebhookURL(),
			WebhookSecret:  cfg.WebhookSecret,
		}, &logger, metrics),
		Reconciler: reconcile.New(jobs, adapters, sink, reconcile.Config{WebhookSecret: cfg.WebhookSecret}, &logger, metrics),
		Logger:     &logger,
		Ping:       ping,
	}
	if cfg.WebhookSecret == "" {
		logger.Warn().Msg("api: WEBHOOK_SECRET unset, webhook callbacks are not authenticated")
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         metrics,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Int("providers", len(adapters)).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

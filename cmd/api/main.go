package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bbys_backend/internal/app"
	apphttp "bbys_backend/internal/http"
	"bbys_backend/internal/http/router"
	"bbys_backend/internal/locks"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/scheduler"
	"bbys_backend/internal/store/postgres"
	"bbys_backend/platform/config"
	"bbys_backend/platform/db"
	"bbys_backend/platform/kafka"
	"bbys_backend/platform/logger"
)

// relayInterval is how often the API drains the outbox itself when no
// worker process is configured.
const relayInterval = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrationsEnabled {
		if err := db.Migrate(ctx, cfg, log); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	opts := app.Options{
		Store:        postgres.New(pool),
		Notification: cfg,
		Tasks:        cfg,
		Sink:         mailer.NewSink(cfg, log),
		Location:     cfg.GetSweepTimezone(),
	}
	if cfg.IsSalesforceEnabled() {
		opts.CRM = salesforce.NewClient(cfg, log)
	} else {
		log.Warn("SALESFORCE_* not configured; CRM calls disabled")
	}

	// With redis, follow-up work goes to the worker process; without it the
	// API runs everything inline and relays its own outbox.
	queued := initQueues(cfg, log, &opts)
	if queued != nil {
		defer queued()
	}

	if cfg.IsKafkaEnabled() {
		producer, err := kafka.NewProducer(cfg.GetKafkaBrokers())
		if err != nil {
			log.Error("failed to initialize kafka producer", "error", err)
			panic("failed to initialize kafka producer: " + err.Error())
		}
		defer func() { _ = producer.Close() }()
		opts.PushQueue = salesforce.NewStream(producer, cfg.GetSalesforcePushTopic())
		log.Info("salesforce push stream enabled", "topic", cfg.GetSalesforcePushTopic())
	}

	// ========================================================================
	// Domain Core (Composition Root)
	// ========================================================================

	core, err := app.New(ctx, opts, log)
	if err != nil {
		log.Error("failed to initialize core", "error", err)
		panic("failed to initialize core: " + err.Error())
	}
	if queued == nil {
		go core.RunRelay(ctx, relayInterval, log)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	httpApp := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPinger(pool),
		Modules: []apphttp.Module{
			core.Applications,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(httpApp),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initQueues points the core at the asynq queue and the redis locks. It
// returns nil when redis is not configured.
func initQueues(cfg *config.Config, log *logger.Logger, opts *app.Options) func() {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; follow-up work runs inline")
		return nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		_ = client.Close()
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}

	opts.NotificationQueue = client
	opts.PushQueue = client
	opts.SyncQueue = client
	opts.RecomputeQueue = client
	opts.Locker = locks.NewRedisLocker(rdb, "bbys:lock:")

	return func() {
		_ = client.Close()
		_ = rdb.Close()
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"bbys_backend/internal/app"
	"bbys_backend/internal/intake"
	"bbys_backend/internal/locks"
	"bbys_backend/internal/mailer"
	"bbys_backend/internal/salesforce"
	"bbys_backend/internal/scheduler"
	"bbys_backend/internal/store/postgres"
	"bbys_backend/platform/config"
	"bbys_backend/platform/db"
	"bbys_backend/platform/kafka"
	"bbys_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	st := postgres.New(pool)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	opts := app.Options{
		Store:             st,
		Notification:      cfg,
		Tasks:             cfg,
		Sink:              mailer.NewSink(cfg, log),
		Locker:            locks.NewRedisLocker(rdb, "bbys:lock:"),
		Location:          cfg.GetSweepTimezone(),
		NotificationQueue: client,
		PushQueue:         client,
		SyncQueue:         client,
		RecomputeQueue:    client,
	}
	if cfg.IsSalesforceEnabled() {
		opts.CRM = salesforce.NewClient(cfg, log)
	} else {
		log.Warn("SALESFORCE_* not configured; CRM calls disabled")
	}

	var producer *kafka.Producer
	if cfg.IsKafkaEnabled() {
		producer, err = kafka.NewProducer(cfg.GetKafkaBrokers())
		if err != nil {
			log.Error("failed to initialize kafka producer", "error", err)
			panic("failed to initialize kafka producer: " + err.Error())
		}
		defer func() { _ = producer.Close() }()
		opts.PushQueue = salesforce.NewStream(producer, cfg.GetSalesforcePushTopic())
	}

	core, err := app.New(ctx, opts, log)
	if err != nil {
		log.Error("failed to initialize core", "error", err)
		panic("failed to initialize core: " + err.Error())
	}

	dispatcher := scheduler.NewOutboxDispatcher(client, st, log)

	periodic, err := scheduler.NewPeriodic(client, scheduler.DefaultSchedule(cfg), cfg.GetSweepTimezone(), log)
	if err != nil {
		log.Error("failed to initialize periodic schedule", "error", err)
		panic("failed to initialize periodic schedule: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, core.Handlers(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { dispatcher.Run(gctx); return nil })
	g.Go(func() error { periodic.Run(gctx); return nil })
	g.Go(func() error { worker.Run(gctx); return nil })

	if cfg.IsKafkaEnabled() {
		startConsumers(gctx, g, cfg, core, opts.CRM != nil, log)
	} else {
		log.Warn("KAFKA_BROKERS not configured; questionnaire intake disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler stopped")
}

// startConsumers runs the questionnaire intake and, when the CRM is
// configured, the push stream consumer.
func startConsumers(ctx context.Context, g *errgroup.Group, cfg *config.Config, core *app.Core, crmEnabled bool, log *logger.Logger) {
	intakeConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.GetKafkaBrokers(),
		Topic:   cfg.GetQuestionnaireTopic(),
		GroupID: cfg.GetKafkaGroupID(),
	}, log)
	if err != nil {
		log.Error("failed to initialize intake consumer", "error", err)
		panic("failed to initialize intake consumer: " + err.Error())
	}
	adapter := intake.NewAdapter(core.Applications.Service(), core.Validator, log)
	g.Go(func() error { return intakeConsumer.Run(ctx, adapter.Handler()) })

	if !crmEnabled {
		return
	}
	pushConsumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.GetKafkaBrokers(),
		Topic:   cfg.GetSalesforcePushTopic(),
		GroupID: cfg.GetKafkaGroupID(),
	}, log)
	if err != nil {
		log.Error("failed to initialize push consumer", "error", err)
		panic("failed to initialize push consumer: " + err.Error())
	}
	g.Go(func() error { return pushConsumer.Run(ctx, core.Pusher.Handler()) })
}

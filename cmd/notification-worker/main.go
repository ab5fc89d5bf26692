package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/library-backend/internal/notifications"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/instance"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/migrate"
	"github.com/angelmondragon/library-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/library-backend/pkg/outbox/registry"
	"github.com/angelmondragon/library-backend/pkg/pubsub"
	"github.com/angelmondragon/library-backend/pkg/rabbitmq"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "notification-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "notification-worker"

	logg = logger.New(logger.Options{
		ServiceName: "notification-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(runCtx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(runCtx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	deps := []dependency{{name: "database", ping: dbClient.Ping}}

	var dedupe *idempotency.Manager
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(runCtx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer redisClient.Close()
		dedupe, err = idempotency.NewManager(redisClient, notifications.ConsumerName, cfg.Eventing.IdempotencyTTL)
		requireResource(ctx, logg, "idempotency manager", err)
		deps = append(deps, dependency{name: "redis", ping: redisClient.Ping})
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)

	handler, err := notifications.NewHandler(notifications.HandlerParams{
		Registry:    eventRegistry,
		Repository:  notifications.NewRepository(dbClient.DB()),
		Mailer:      notifications.NewLogMailer(logg),
		Idempotency: dedupe,
		Logger:      logg,
	})
	requireResource(ctx, logg, "notification handler", err)

	var eventConsumer consumer
	if cfg.Eventing.UsesRabbitMQ() {
		rabbitClient, err := rabbitmq.New(runCtx, cfg.RabbitMQ, logg)
		requireResource(ctx, logg, "rabbitmq", err)
		defer rabbitClient.Close()
		eventConsumer, err = notifications.NewAMQPConsumer(handler, rabbitClient, logg)
		requireResource(ctx, logg, "rabbitmq consumer", err)
		deps = append(deps, dependency{name: "rabbitmq", ping: rabbitClient.Ping})
	} else {
		pubsubClient, err := pubsub.NewClient(runCtx, cfg.GCP, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		defer pubsubClient.Close()
		eventConsumer, err = notifications.NewConsumer(handler, pubsubClient.NotificationSubscription(), logg)
		requireResource(ctx, logg, "pubsub consumer", err)
		deps = append(deps, dependency{name: "pubsub", ping: pubsubClient.Ping})
	}

	service, err := NewService(ServiceParams{
		Logger:       logg,
		Consumer:     eventConsumer,
		Dependencies: deps,
	})
	requireResource(ctx, logg, "notification worker", err)

	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"instance":    instance.ID(),
		"serviceKind": cfg.Service.Kind,
		"transport":   cfg.Eventing.Transport,
	})
	logg.Info(runCtx, "starting notification worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "notification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, name string, err error) {
	if err != nil {
		logg.Error(ctx, "failed to initialize "+name, err)
		os.Exit(1)
	}
}

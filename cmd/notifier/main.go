package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Iridium40/roam-services-sub004/internal/api"
	"github.com/Iridium40/roam-services-sub004/internal/bus"
	"github.com/Iridium40/roam-services-sub004/internal/config"
	"github.com/Iridium40/roam-services-sub004/internal/dispatch"
	"github.com/Iridium40/roam-services-sub004/internal/event"
	"github.com/Iridium40/roam-services-sub004/internal/history"
	"github.com/Iridium40/roam-services-sub004/internal/prefs"
	"github.com/Iridium40/roam-services-sub004/internal/registry"
	"github.com/Iridium40/roam-services-sub004/internal/sidechannel"
	"github.com/Iridium40/roam-services-sub004/pkg/httpserver"
	"github.com/Iridium40/roam-services-sub004/pkg/logger"
	"github.com/Iridium40/roam-services-sub004/pkg/pg"
	"github.com/Iridium40/roam-services-sub004/pkg/redisconn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewFromConfig(cfg.Logger, logger.WithService(cfg.ServiceName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(registry.WithLogger[history.Notification](log))
	defer reg.Close()

	store := history.NewMemoryStore(history.DefaultCapacity)

	// Redis backs the preference store and the event bus when enabled.
	var redisClient *redis.Client
	if cfg.Bus.Enabled || cfg.PreferenceBackend == "redis" {
		client, err := redisconn.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		redisClient = client
		defer func() { _ = redisClient.Close() }()
	}

	var gate prefs.Store = prefs.NewMemoryStore()
	if cfg.PreferenceBackend == "redis" {
		gate = prefs.NewRedisStore(redisClient)
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(log)}
	adapterOpts := []event.Option{
		event.WithLogger(log),
		event.WithTimeout(cfg.Event.ProcessTimeout),
		event.WithSignatureMaxAge(cfg.Event.SignatureMaxAge),
	}

	// Postgres is optional: without it the service runs purely in-memory.
	if cfg.PG.ConnectionString != "" {
		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := pg.Migrate(ctx, pool, history.Migrations()); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		pgStore := history.NewPGStore(pool)
		dispatchOpts = append(dispatchOpts, dispatch.WithMirror(pgStore))
		adapterOpts = append(adapterOpts, event.WithHistoryRecorder(pgStore))

		if cfg.Email.ServerToken != "" {
			email, err := sidechannel.NewEmailSender(cfg.Email, sidechannel.NewPGDirectory(pool))
			if err != nil {
				return fmt.Errorf("email sender: %w", err)
			}
			dispatchOpts = append(dispatchOpts, dispatch.WithSender(email))
		}
		log.Info("durable storage enabled")
	}

	if cfg.Chat.Endpoint != "" {
		chat, err := sidechannel.NewChatSender(cfg.Chat)
		if err != nil {
			return fmt.Errorf("chat sender: %w", err)
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithSender(chat))
	}

	dispatcher := dispatch.New(reg, store, gate, dispatchOpts...)
	adapter := event.New(dispatcher, cfg.Event.WebhookSecrets, adapterOpts...)

	if cfg.Bus.Enabled {
		subscriber := bus.NewSubscriber(redisClient, adapter,
			bus.WithLogger(log),
			bus.WithChannel(cfg.Bus.Channel),
			bus.WithReconnectDelay(cfg.Bus.ReconnectDelay),
		)
		go func() {
			if err := subscriber.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("event bus stopped", logger.Error(err))
			}
		}()
	}

	surface := api.New(adapter, reg, store, gate,
		api.WithLogger(log),
		api.WithLivenessInterval(cfg.Stream.LivenessInterval),
		api.WithChannelBuffer(cfg.Stream.ChannelBuffer),
	)

	srv := httpserver.New(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, surface.Router())
}

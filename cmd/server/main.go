package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"rentalhub/internal/app/commands"
	"rentalhub/internal/app/handlers/conversations"
	"rentalhub/internal/app/middleware"
	appoutbox "rentalhub/internal/app/outbox"
	"rentalhub/internal/app/policies"
	"rentalhub/internal/app/queries"
	"rentalhub/internal/app/uow"
	"rentalhub/internal/infra/broker/kafka"
	rediscache "rentalhub/internal/infra/cache/redis"
	"rentalhub/internal/infra/config"
	mongostore "rentalhub/internal/infra/db/mongo"
	"rentalhub/internal/infra/db/scylla"
	ginserver "rentalhub/internal/infra/http/gin"
	"rentalhub/internal/infra/notify"
	"rentalhub/internal/infra/obs"
	outboxrelay "rentalhub/internal/infra/outbox"
	"rentalhub/internal/infra/presence"
	"rentalhub/internal/infra/realtime"
	"rentalhub/internal/infra/security"
	"rentalhub/internal/infra/storage/cloudinary"
	"rentalhub/internal/infra/storage/memory"
	"rentalhub/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	logger := obs.NewLogger(getenv("APP_ENV", "dev"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger = obs.NewLogger(cfg.Env)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, app.handlers)
	app.startBackground(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.gateway.Shutdown(shutdownCtx); err != nil {
			logger.Error("gateway shutdown failed", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		app.close(logger)
		os.Exit(1)
	}
	app.close(logger)
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	gateway  *realtime.Gateway

	background []func(context.Context)
	closers    []func(context.Context) error
}

func (a *application) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *application) startBackground(ctx context.Context) {
	for _, run := range a.background {
		go run(ctx)
	}
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

// storage is the persistence selected by STORE_BACKEND.
type storage struct {
	factory     uow.UoWFactory
	idempotency middleware.IdempotencyStore
	outbox      appoutbox.Outbox
	source      appoutbox.Source
	durable     bool
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}
	instanceID := uuid.NewString()

	store, err := openStorage(ctx, cfg, logger, app)
	if err != nil {
		return nil, err
	}

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = rediscache.Connect(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		app.onClose(func(context.Context) error { return redisClient.Close() })
		store.idempotency = rediscache.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	}

	hub := realtime.NewHub(logger)
	var registry *presence.Registry
	if redisClient != nil {
		relay := &realtime.RedisRelay{Client: redisClient, InstanceID: instanceID, Logger: logger}
		hub.Relay = relay
		app.background = append(app.background, func(ctx context.Context) { relay.Run(ctx, hub) })

		registry = presence.NewRegistry(presence.RedisMirror{Client: redisClient, InstanceID: instanceID, TTL: cfg.PresenceTTL}, logger)
		heartbeat := &presence.Heartbeat{Registry: registry, Interval: cfg.PresenceTTL / 3, Timeout: cfg.PresenceTTL / 3, Logger: logger}
		if err := heartbeat.Start(); err != nil {
			return nil, err
		}
		app.onClose(func(context.Context) error { heartbeat.Stop(); return nil })
	} else {
		registry = presence.NewRegistry(nil, logger)
	}

	notifier, err := buildNotifier(cfg, logger, store, app)
	if err != nil {
		return nil, err
	}

	svc := &conversations.Service{
		UoWFactory:    store.factory,
		Broadcaster:   hub,
		Presence:      registry,
		Notifier:      notifier,
		Outbox:        store.outbox,
		Encoder:       appoutbox.JSONEventEncoder{},
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout,
	}

	validator := middleware.NewStructValidator()
	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()
	conversations.Register(svc, commandBus, queryBus)

	commandsWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.RequireActor(),
		middleware.Idempotency(store.idempotency, nil),
		middleware.Validation(validator),
		middleware.Transaction(store.factory, nil),
	)
	queriesWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryRequireActor(),
		middleware.QueryValidation(validator),
	)

	verifier := security.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	app.gateway = &realtime.Gateway{
		Hub:       hub,
		Presence:  registry,
		Verifier:  verifier,
		Commands:  commandsWithMiddleware,
		Joins:     svc,
		Validator: validator,
		Logger:    logger,
		Options: realtime.Options{
			ReadLimit:      cfg.WSReadLimit,
			PingInterval:   cfg.WSPingInterval,
			SendBuffer:     cfg.WSSendBuffer,
			EventRate:      cfg.WSEventRate,
			EventBurst:     cfg.WSEventBurst,
			AllowedOrigins: cfg.AllowedOrigins,
		},
	}

	uploader, err := buildUploader(cfg, logger)
	if err != nil {
		return nil, err
	}

	app.handlers = ginserver.Handlers{
		Chat: ginserver.ChatHandler{
			Commands:       commandsWithMiddleware,
			Queries:        queriesWithMiddleware,
			Uploader:       uploader,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Logger:         logger,
		},
		Realtime:       app.gateway,
		AuthMiddleware: ginserver.AuthMiddleware{Verifier: verifier, Logger: logger}.Handle,
	}
	app.onClose(func(ctx context.Context) error { registry.Close(ctx); return nil })
	return app, nil
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, app *application) (storage, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return storage{}, err
		}
		app.onClose(client.Close)
		if err := client.EnsureIndexes(ctx); err != nil {
			return storage{}, err
		}
		idem := mongostore.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL)
		if err := idem.EnsureIndexes(ctx); err != nil {
			return storage{}, err
		}
		events := outboxrelay.NewStore(client.DB)
		if err := events.EnsureIndexes(ctx); err != nil {
			return storage{}, err
		}
		logger.Info("mongo storage ready", "database", cfg.MongoDB, "transactions", cfg.MongoTransactions)
		return storage{
			factory:     mongostore.Factory{DB: client.DB, Transactions: cfg.MongoTransactions},
			idempotency: idem,
			outbox:      events,
			source:      events,
			durable:     true,
		}, nil
	case config.StoreScylla:
		session, err := scylla.NewSession(cfg, logger)
		if err != nil {
			return storage{}, err
		}
		app.onClose(closeSession(session))
		events := memory.NewOutbox()
		return storage{
			factory:     scylla.Factory{Session: session, Logger: logger},
			idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
			outbox:      events,
			source:      events,
		}, nil
	default:
		events := memory.NewOutbox()
		return storage{
			factory:     memory.NewFactory(),
			idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
			outbox:      events,
			source:      events,
		}, nil
	}
}

func closeSession(session *gocql.Session) func(context.Context) error {
	return func(context.Context) error {
		session.Close()
		return nil
	}
}

// buildNotifier prefers the durable outbox when both a broker and a durable
// store exist, publishes directly when only the broker exists, and logs
// otherwise. The outbox relay runs whenever a broker is configured.
func buildNotifier(cfg config.Config, logger *slog.Logger, store storage, app *application) (policies.Notifier, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.LogNotifier{Logger: logger}, nil
	}
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return producer.Close() })

	worker := &outboxrelay.Worker{
		Source:      store.source,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}
	app.background = append(app.background, func(ctx context.Context) {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", "error", err)
		}
	})

	if store.durable {
		return notify.OutboxNotifier{Outbox: store.outbox, Encoder: appoutbox.JSONEventEncoder{}}, nil
	}
	return kafka.NewNotifier(producer, cfg.KafkaTopicPrefix), nil
}

func buildUploader(cfg config.Config, logger *slog.Logger) (policies.Uploader, error) {
	switch cfg.UploadBackend {
	case config.UploadS3:
		client, err := s3.NewClient(s3.Options{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 uploader: %w", err)
		}
		return client, nil
	case config.UploadCloudinary:
		uploader, err := cloudinary.New(cfg.CloudinaryURL, cfg.CloudinaryFolder, logger)
		if err != nil {
			return nil, fmt.Errorf("cloudinary uploader: %w", err)
		}
		return uploader, nil
	default:
		return nil, nil
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

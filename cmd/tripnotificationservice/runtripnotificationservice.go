package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/joho/godotenv"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-trip-notification-service/internal/platform"
	"github.com/tinywideclouds/go-trip-notification-service/internal/platform/apns"
	"github.com/tinywideclouds/go-trip-notification-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-trip-notification-service/internal/platform/web"

	"github.com/tinywideclouds/go-trip-notification-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-trip-notification-service/internal/storage/firestore"
	pgStore "github.com/tinywideclouds/go-trip-notification-service/internal/storage/postgres"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"

	"github.com/tinywideclouds/go-trip-notification-service/tripnotificationservice"
	"github.com/tinywideclouds/go-trip-notification-service/tripnotificationservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	// Local runs keep secrets (P8 key, VAPID keys, DSN) in .env.
	_ = godotenv.Load()

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-trip-notification-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// Users, trips and search preferences always come from Firestore.
	directory := fsStore.NewDirectory(fsClient)

	// --- Device Registry (Decorated) ---
	var registry dispatch.DeviceRegistry
	switch cfg.RegistryBackend {
	case config.BackendPostgres:
		pool, err := pgStore.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.ConnectAttempts, cfg.Postgres.ConnectInterval)
		if err != nil {
			logger.Error("Postgres connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pgStore.Migrate(ctx, pool); err != nil {
			logger.Error("Postgres migration failed", "err", err)
			os.Exit(1)
		}
		registry = pgStore.NewRegistry(pool)
	default:
		registry = fsStore.NewRegistry(fsClient)
	}
	logger.Info("DeviceRegistry initialized", "type", cfg.RegistryBackend)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		registry = cache.NewCachedRegistry(registry, redisClient, cfg.Redis.TTL, logger)
		logger.Info("DeviceRegistry upgraded", "type", "redis_cached_"+cfg.RegistryBackend)
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT discovery failed", "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Auth middleware failed", "err", err)
		os.Exit(1)
	}

	// --- Senders ---
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build push senders", "err", err)
		os.Exit(1)
	}

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := tripnotificationservice.New(
		cfg,
		consumer,
		registry,
		directory,
		sender,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newSender routes by device platform. FCM is always present and takes any
// platform nobody else claims; APNs and Web Push are optional.
func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Sender, error) {
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
	}
	router := platform.NewRouter(fcm.NewSender(fcmMessaging, logger))

	apnsCfg := apns.Config{
		KeyID:        cfg.Apns.KeyID,
		TeamID:       cfg.Apns.TeamID,
		BundleID:     cfg.Apns.BundleID,
		P8KeyContent: cfg.Apns.P8KeyContent,
		Sandbox:      cfg.Apns.Sandbox,
	}
	if apnsCfg.Enabled() {
		apnsSender, err := apns.NewSender(apnsCfg, logger)
		if err != nil {
			return nil, err
		}
		router.Route(notification.PlatformIOS, apnsSender)
		logger.Info("APNs sender enabled", "bundle_id", apnsCfg.BundleID, "sandbox", apnsCfg.Sandbox)
	} else {
		logger.Info("APNs not configured; iOS devices go through FCM")
	}

	if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
		logger.Warn("VAPID keys missing in configuration. Web devices go through FCM.")
	} else {
		router.Route(notification.PlatformWeb, web.NewSender(cfg.Vapid, logger))
		logger.Info("Web Push sender enabled", "public_key", cfg.Vapid.PublicKey)
	}
	return router, nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}

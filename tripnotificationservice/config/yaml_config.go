package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlApnsConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	Sandbox  bool   `yaml:"sandbox"`
}

type YamlPostgresConfig struct {
	DSN             string `yaml:"dsn"`
	ConnectAttempts int    `yaml:"connect_attempts"`
	ConnectInterval string `yaml:"connect_interval"`
}

type YamlDeliveryConfig struct {
	SendTimeout             string `yaml:"send_timeout"`
	MaxConcurrentSends      int    `yaml:"max_concurrent_sends"`
	MaxConcurrentRecipients int    `yaml:"max_concurrent_recipients"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string             `yaml:"project_id"`
	ListenAddr             string             `yaml:"listen_addr"`
	TopicID                string             `yaml:"topic_id"`
	SubscriptionID         string             `yaml:"subscription_id"`
	SubscriptionDLQTopicID string             `yaml:"subscription_dlq_topic_id"`
	RegistryBackend        string             `yaml:"registry_backend"`
	PostgresConfig         YamlPostgresConfig `yaml:"postgres"`
	CorsConfig             YamlCorsConfig     `yaml:"cors"`
	RedisConfig            YamlRedisConfig    `yaml:"redis"`
	VapidConfig            YamlVapidConfig    `yaml:"vapid"`
	ApnsConfig             YamlApnsConfig     `yaml:"apns"`
	DeliveryConfig         YamlDeliveryConfig `yaml:"delivery"`
	NumPipelineWorkers     int                `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// The P8 key is never read from YAML; it only comes from the environment.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	sendTimeout, err := parseDuration("delivery.send_timeout", baseCfg.DeliveryConfig.SendTimeout)
	if err != nil {
		return nil, err
	}
	redisTTL, err := parseDuration("redis.ttl", baseCfg.RedisConfig.TTL)
	if err != nil {
		return nil, err
	}
	connectInterval, err := parseDuration("postgres.connect_interval", baseCfg.PostgresConfig.ConnectInterval)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:       baseCfg.ProjectID,
		ListenAddr:      baseCfg.ListenAddr,
		TopicID:         baseCfg.TopicID,
		SubscriptionID:  baseCfg.SubscriptionID,
		RegistryBackend: baseCfg.RegistryBackend,
		Postgres: PostgresConfig{
			DSN:             baseCfg.PostgresConfig.DSN,
			ConnectAttempts: baseCfg.PostgresConfig.ConnectAttempts,
			ConnectInterval: connectInterval,
		},
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      redisTTL,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		Apns: ApnsConfig{
			KeyID:    baseCfg.ApnsConfig.KeyID,
			TeamID:   baseCfg.ApnsConfig.TeamID,
			BundleID: baseCfg.ApnsConfig.BundleID,
			Sandbox:  baseCfg.ApnsConfig.Sandbox,
		},
		Delivery: DeliveryConfig{
			SendTimeout:             sendTimeout,
			MaxConcurrentSends:      baseCfg.DeliveryConfig.MaxConcurrentSends,
			MaxConcurrentRecipients: baseCfg.DeliveryConfig.MaxConcurrentRecipients,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"registry_backend", cfg.RegistryBackend,
	)

	return cfg, nil
}

// parseDuration treats an empty value as unset.
func parseDuration(key, val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

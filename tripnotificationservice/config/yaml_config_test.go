package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-trip-notification-service/tripnotificationservice/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:              "yaml-project",
			ListenAddr:             ":9000",
			TopicID:                "yaml-topic",
			SubscriptionID:         "yaml-subscription",
			SubscriptionDLQTopicID: "yaml-dlq",
			NumPipelineWorkers:     5,
			RegistryBackend:        "postgres",
			PostgresConfig: config.YamlPostgresConfig{
				DSN:             "postgres://localhost/trips",
				ConnectAttempts: 3,
				ConnectInterval: "500ms",
			},
			CorsConfig: config.YamlCorsConfig{
				AllowedOrigins: []string{"http://yaml.com"},
				Role:           "editor",
			},
			RedisConfig: config.YamlRedisConfig{Addr: "redis:6379", Enabled: true, TTL: "30m"},
			VapidConfig: config.YamlVapidConfig{
				PublicKey:       "yaml-public-key",
				PrivateKey:      "yaml-private-key",
				SubscriberEmail: "yaml@test.com",
			},
			ApnsConfig: config.YamlApnsConfig{KeyID: "K", TeamID: "T", BundleID: "com.trips.app", Sandbox: true},
			DeliveryConfig: config.YamlDeliveryConfig{
				SendTimeout:             "5s",
				MaxConcurrentSends:      32,
				MaxConcurrentRecipients: 4,
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		// 2. CORS
		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		// 3. Push providers
		assert.Equal(t, "yaml-public-key", cfg.Vapid.PublicKey)
		assert.Equal(t, "yaml@test.com", cfg.Vapid.SubscriberEmail)
		assert.Equal(t, "com.trips.app", cfg.Apns.BundleID)
		assert.Empty(t, cfg.Apns.P8KeyContent)

		// 4. Storage and delivery
		assert.Equal(t, "postgres", cfg.RegistryBackend)
		assert.Equal(t, 500*time.Millisecond, cfg.Postgres.ConnectInterval)
		assert.Equal(t, 30*time.Minute, cfg.Redis.TTL)
		assert.Equal(t, 5*time.Second, cfg.Delivery.SendTimeout)
		assert.Equal(t, 32, cfg.Delivery.MaxConcurrentSends)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Failure - bad duration", func(t *testing.T) {
		_, err := config.NewConfigFromYaml(&config.YamlConfig{
			DeliveryConfig: config.YamlDeliveryConfig{SendTimeout: "soon"},
		}, logger)
		assert.ErrorContains(t, err, "delivery.send_timeout")
	})

	t.Run("Decodes from YAML text", func(t *testing.T) {
		raw := []byte(`
project_id: local-project
subscription_id: trip-events-sub
delivery:
  send_timeout: 2s
  max_concurrent_sends: 8
redis:
  ttl: 12h
`)
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal(raw, &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
		require.NoError(t, err)
		assert.Equal(t, "local-project", cfg.ProjectID)
		assert.Equal(t, 2*time.Second, cfg.Delivery.SendTimeout)
		assert.Equal(t, 8, cfg.Delivery.MaxConcurrentSends)
		assert.Equal(t, 12*time.Hour, cfg.Redis.TTL)
	})
}

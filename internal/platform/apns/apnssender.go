// Package apns provides the client for the Apple Push Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx context.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file
	P8KeyContent string
	Sandbox      bool
}

// Enabled reports whether enough credentials are present to build a sender.
func (c Config) Enabled() bool {
	return c.KeyID != "" && c.TeamID != "" && c.BundleID != "" && c.P8KeyContent != ""
}

type Sender struct {
	client APNSClient
	topic  string // The App Bundle ID
	logger *slog.Logger
}

// tokenClient adapts *apns2.Client to APNSClient.
type tokenClient struct {
	client *apns2.Client
}

func (c tokenClient) PushWithContext(ctx context.Context, n *apns2.Notification) (*apns2.Response, error) {
	return c.client.PushWithContext(ctx, n)
}

// NewSender creates a configured APNS sender.
// It parses the P8 key immediately to fail fast on startup if credentials are bad.
func NewSender(cfg Config, logger *slog.Logger) (*Sender, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return newSender(tokenClient{client: client}, cfg.BundleID, logger), nil
}

func newSender(client APNSClient, topic string, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSSender"),
	}
}

// Send pushes to one device token. The APNs HTTP/2 API is unary, so there is
// nothing to batch.
func (d *Sender) Send(ctx context.Context, device notification.Device, msg notification.Message) error {
	content := msg.Content()
	builder := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body).
		Sound("default")
	for k, v := range msg.Data {
		builder.Custom(k, v)
	}

	res, err := d.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: device.Token,
		Topic:       d.topic,
		Payload:     builder,
	})
	if err != nil {
		return fmt.Errorf("apns transport failed: %w", err)
	}
	if res.Sent() {
		return nil
	}

	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return fmt.Errorf("%w: apns reason %s", dispatch.ErrInvalidToken, res.Reason)
	default:
		// The token may be fine while our configuration is wrong.
		d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		return fmt.Errorf("apns rejected notification: status %d reason %s", res.StatusCode, res.Reason)
	}
}

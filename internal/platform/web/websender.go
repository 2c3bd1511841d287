package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/tripnotificationservice/config"
)

type Sender struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewSender(cfg config.VapidConfig, logger *slog.Logger) *Sender {
	return &Sender{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushSender"),
		httpClient: &http.Client{},
	}
}

// ParseSubscription decodes the JSON subscription a browser hands out, which
// is what web devices register as their token.
func ParseSubscription(token string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, fmt.Errorf("invalid web push subscription: %w", err)
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, fmt.Errorf("incomplete web push subscription")
	}
	return &sub, nil
}

func (d *Sender) Send(ctx context.Context, device notification.Device, msg notification.Message) error {
	sub, err := ParseSubscription(device.Token)
	if err != nil {
		// A token that never parses can never be delivered.
		return fmt.Errorf("%w: %v", dispatch.ErrInvalidToken, err)
	}

	content := msg.Content()
	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": content.Title,
			"body":  content.Body,
		},
		"data": msg.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, sub, &webpush.Options{
		Subscriber:      d.subscriber,
		VAPIDPublicKey:  d.publicKey,
		VAPIDPrivateKey: d.privateKey,
		TTL:             60,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		return fmt.Errorf("webpush transport failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: endpoint returned %d", dispatch.ErrInvalidToken, resp.StatusCode)
	default:
		d.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
		return fmt.Errorf("webpush rejected: status %d", resp.StatusCode)
	}
}

// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Sender struct {
	client MessagingClient
	logger *slog.Logger
}

func NewSender(client MessagingClient, logger *slog.Logger) *Sender {
	return &Sender{
		client: client,
		logger: logger.With("component", "FCMSender"),
	}
}

// Send delivers one message to one registration token.
func (d *Sender) Send(ctx context.Context, device notification.Device, msg notification.Message) error {
	content := msg.Content()
	message := &messaging.Message{
		Token: device.Token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: content.Title,
				Body:  content.Body,
				Icon:  "/assets/icons/icon-192x192.png",
			},
		},
	}

	id, err := d.client.Send(ctx, message)
	if err != nil {
		if isDeadToken(err) {
			return fmt.Errorf("%w: %v", dispatch.ErrInvalidToken, err)
		}
		return fmt.Errorf("fcm send failed: %w", err)
	}

	d.logger.Debug("FCM message sent", "message_id", id)
	return nil
}

// isDeadToken reports whether FCM rejected the token rather than the message.
// INVALID_ARGUMENT also covers oversized or malformed payloads, so it only
// counts when FCM names the registration token as the bad argument.
func isDeadToken(err error) bool {
	if messaging.IsUnregistered(err) {
		return true
	}
	return messaging.IsInvalidArgument(err) &&
		strings.Contains(strings.ToLower(err.Error()), "registration token")
}

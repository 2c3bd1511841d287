// Package delivery sends one rendered message to every device of a user.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

const (
	DefaultSendTimeout        = 10 * time.Second
	DefaultMaxConcurrentSends = 16
)

// Config bounds outbound traffic to the push providers.
type Config struct {
	SendTimeout        time.Duration
	MaxConcurrentSends int
}

// UserNotifier resolves a user's devices and sends to each independently.
// A failing device never prevents attempts on the user's other devices.
type UserNotifier struct {
	registry dispatch.DeviceRegistry
	sender   dispatch.Sender
	cfg      Config
	logger   *slog.Logger
}

func NewUserNotifier(registry dispatch.DeviceRegistry, sender dispatch.Sender, cfg Config, logger *slog.Logger) *UserNotifier {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.MaxConcurrentSends <= 0 {
		cfg.MaxConcurrentSends = DefaultMaxConcurrentSends
	}
	return &UserNotifier{
		registry: registry,
		sender:   sender,
		cfg:      cfg,
		logger:   logger.With("component", "UserNotifier"),
	}
}

// NotifyUser sends msg to every device of userID and returns one result per
// device. A user without devices yields no results. It never fails.
func (n *UserNotifier) NotifyUser(ctx context.Context, userID string, msg notification.Message) []notification.DeliveryResult {
	log := n.logger.With("user_id", userID)

	devices, err := n.registry.TokensFor(ctx, userID)
	if err != nil {
		log.Error("Failed to look up devices; skipping user", "err", err)
		return nil
	}
	if len(devices) == 0 {
		log.Debug("No devices registered for user")
		return nil
	}

	results := make([]notification.DeliveryResult, len(devices))
	var g errgroup.Group
	g.SetLimit(n.cfg.MaxConcurrentSends)
	for i, device := range devices {
		g.Go(func() error {
			results[i] = n.send(ctx, device, msg)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Success {
			continue
		}
		log.Warn("Delivery failed", "platform", r.Platform, "err", r.Err)
		if errors.Is(r.Err, dispatch.ErrInvalidToken) {
			if err := n.registry.Unregister(ctx, userID, r.Token); err != nil {
				log.Warn("Failed to prune invalid token", "platform", r.Platform, "err", err)
			} else {
				log.Info("Pruned invalid token", "platform", r.Platform)
			}
		}
	}
	return results
}

// NotifyUsers applies NotifyUser to each id. Users are processed one after the
// other; sends for a single user are concurrent.
func (n *UserNotifier) NotifyUsers(ctx context.Context, userIDs []string, msg notification.Message) []notification.DeliveryResult {
	var all []notification.DeliveryResult
	for _, id := range userIDs {
		all = append(all, n.NotifyUser(ctx, id, msg)...)
	}
	return all
}

func (n *UserNotifier) send(ctx context.Context, device notification.Device, msg notification.Message) (res notification.DeliveryResult) {
	res = notification.DeliveryResult{
		UserID:   device.UserID,
		Token:    device.Token,
		Platform: device.Platform,
	}
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Err = fmt.Errorf("sender panicked: %v", p)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.SendTimeout)
	defer cancel()

	if err := n.sender.Send(sendCtx, device, msg); err != nil {
		res.Err = err
		return res
	}
	res.Success = true
	return res
}

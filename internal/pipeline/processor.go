package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

// EventHandler is satisfied by tripevents.Notifier.
type EventHandler interface {
	Handle(ctx context.Context, ev trip.Event) (notification.Summary, error)
}

// NewProcessor creates the logic that hands each decoded event to the fan-out.
//
// Only lookup failures are returned, so the message is redelivered. Delivery
// outcomes are never a reason to redeliver: that would re-notify everyone who
// already received the message.
func NewProcessor(handler EventHandler, logger *slog.Logger) messagepipeline.StreamProcessor[trip.Event] {
	return func(ctx context.Context, original messagepipeline.Message, ev *trip.Event) error {
		procLogger := logger.With(
			"event_id", ev.ID,
			"event_type", string(ev.Type),
			"trip_id", ev.TripID,
			"pubsub_msg_id", original.ID,
		)

		summary, err := handler.Handle(ctx, *ev)
		switch {
		case err == nil:
		case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, trip.ErrInvalidEvent):
			procLogger.Warn("Dropping unroutable trip event", "err", err)
			return nil
		default:
			procLogger.Error("Failed to resolve trip event", "err", err)
			return err // Retryable
		}

		if summary.Recipients == 0 {
			procLogger.Info("No recipients for trip event")
			return nil
		}
		procLogger.Info("Trip event dispatched",
			"recipients", summary.Recipients,
			"delivered", summary.Delivered,
			"failed", summary.Failed,
		)
		return nil
	}
}

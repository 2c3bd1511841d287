// Package pipeline adapts trip lifecycle events arriving over Pub/Sub to the
// trip event notifier.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

// TripEventTransformer is a dataflow Transformer that unmarshals and validates
// a raw message payload into a trip.Event.
//
// Any failure returns skip=true so the StreamingService Nacks the message and
// the subscription's dead-letter policy takes over.
func TripEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*trip.Event, bool, error) {
	var ev trip.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal trip event from message %s: %w", msg.ID, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, true, fmt.Errorf("rejected trip event from message %s: %w", msg.ID, err)
	}
	if ev.TripID == "" {
		ev.TripID = ev.Trip.ID
	}
	return &ev, false, nil
}

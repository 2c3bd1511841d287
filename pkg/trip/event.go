package trip

import (
	"errors"
	"fmt"
)

// EventType names a trip lifecycle transition.
type EventType string

const (
	EventCreated   EventType = "trip.created"
	EventBooked    EventType = "trip.booked"
	EventCancelled EventType = "trip.cancelled"
	EventCompleted EventType = "trip.completed"
)

// ErrInvalidEvent is returned by Event.Validate.
var ErrInvalidEvent = errors.New("invalid trip event")

// Event is published by the trip lifecycle handlers once a transition has
// been committed. ActorID is the booking passenger for EventBooked and the
// cancelling user for EventCancelled.
//
// Trip is an optional snapshot; when present it is used instead of reading the
// trip back, which matters for cancellations that delete the trip row.
type Event struct {
	ID      string    `json:"event_id"`
	Type    EventType `json:"type"`
	TripID  string    `json:"trip_id"`
	ActorID string    `json:"actor_id,omitempty"`
	Trip    *Trip     `json:"trip,omitempty"`
}

// NeedsActor reports whether the event type carries an acting user.
func (t EventType) NeedsActor() bool {
	return t == EventBooked || t == EventCancelled
}

// Validate checks the event is routable.
func (e *Event) Validate() error {
	switch e.Type {
	case EventCreated, EventBooked, EventCancelled, EventCompleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.TripID == "" && (e.Trip == nil || e.Trip.ID == "") {
		return fmt.Errorf("%w: missing trip_id", ErrInvalidEvent)
	}
	if e.Type.NeedsActor() && e.ActorID == "" {
		return fmt.Errorf("%w: %s requires actor_id", ErrInvalidEvent, e.Type)
	}
	return nil
}

package tripevents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

const DefaultMaxConcurrentRecipients = 8

// UserNotifier delivers one message to every device of one user. It reports
// per-device outcomes and never fails.
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID string, msg notification.Message) []notification.DeliveryResult
}

type Config struct {
	MaxConcurrentRecipients int
}

// Notifier turns trip lifecycle transitions into notifications. It holds no
// state between calls; handling the same event twice sends twice.
type Notifier struct {
	users     UserNotifier
	directory dispatch.Directory
	matcher   *RouteMatcher
	cfg       Config
	logger    *slog.Logger
}

type outbound struct {
	userID string
	msg    notification.Message
}

func NewNotifier(users UserNotifier, directory dispatch.Directory, matcher *RouteMatcher, cfg Config, logger *slog.Logger) *Notifier {
	if cfg.MaxConcurrentRecipients <= 0 {
		cfg.MaxConcurrentRecipients = DefaultMaxConcurrentRecipients
	}
	return &Notifier{
		users:     users,
		directory: directory,
		matcher:   matcher,
		cfg:       cfg,
		logger:    logger.With("component", "TripEventNotifier"),
	}
}

// OnTripCreated notifies every user with a matching search preference.
// The error is only for a failed preference lookup; nothing was sent then.
func (n *Notifier) OnTripCreated(ctx context.Context, t trip.Trip) (notification.Summary, error) {
	users, err := n.matcher.FindMatchingPassengers(ctx, t)
	if err != nil {
		return notification.Summary{}, err
	}
	if len(users) == 0 {
		return notification.Summary{}, nil
	}

	msg := NewTripMessage(t, n.lookupUser(ctx, t.DriverID))
	out := make([]outbound, 0, len(users))
	for _, id := range users {
		out = append(out, outbound{userID: id, msg: msg})
	}
	return n.fanOut(ctx, trip.EventCreated, t, out), nil
}

// OnTripBooked notifies the driver, then the booking passenger.
func (n *Notifier) OnTripBooked(ctx context.Context, t trip.Trip, passenger trip.User) notification.Summary {
	return n.fanOut(ctx, trip.EventBooked, t, []outbound{
		{userID: t.DriverID, msg: DriverBookingMessage(t, passenger)},
		{userID: passenger.ID, msg: BookingConfirmedMessage(t)},
	})
}

// OnTripCancelled notifies every passenger, and the driver only when the
// driver is the one who cancelled.
func (n *Notifier) OnTripCancelled(ctx context.Context, t trip.Trip, cancelledBy trip.User) notification.Summary {
	out := make([]outbound, 0, len(t.Passengers)+1)
	msg := PassengerCancelledMessage(t, cancelledBy)
	for _, p := range t.Passengers {
		out = append(out, outbound{userID: p, msg: msg})
	}
	if cancelledBy.ID != "" && cancelledBy.ID == t.DriverID {
		out = append(out, outbound{userID: t.DriverID, msg: DriverCancelledMessage(t)})
	}
	return n.fanOut(ctx, trip.EventCancelled, t, out)
}

// OnTripCompleted notifies the driver and every passenger.
func (n *Notifier) OnTripCompleted(ctx context.Context, t trip.Trip) notification.Summary {
	msg := CompletedMessage(t)
	out := make([]outbound, 0, len(t.Passengers)+1)
	out = append(out, outbound{userID: t.DriverID, msg: msg})
	for _, p := range t.Passengers {
		out = append(out, outbound{userID: p, msg: msg})
	}
	return n.fanOut(ctx, trip.EventCompleted, t, out)
}

// Handle resolves the event's trip and actor, then dispatches to the matching
// On* method. Returned errors come from the directory only; a missing trip
// wraps dispatch.ErrNotFound.
func (n *Notifier) Handle(ctx context.Context, ev trip.Event) (notification.Summary, error) {
	if err := ev.Validate(); err != nil {
		return notification.Summary{}, err
	}

	t, err := n.resolveTrip(ctx, ev)
	if err != nil {
		return notification.Summary{}, err
	}

	switch ev.Type {
	case trip.EventCreated:
		return n.OnTripCreated(ctx, t)
	case trip.EventBooked:
		actor, err := n.resolveActor(ctx, ev.ActorID)
		if err != nil {
			return notification.Summary{}, err
		}
		return n.OnTripBooked(ctx, t, actor), nil
	case trip.EventCancelled:
		actor, err := n.resolveActor(ctx, ev.ActorID)
		if err != nil {
			return notification.Summary{}, err
		}
		return n.OnTripCancelled(ctx, t, actor), nil
	default:
		return n.OnTripCompleted(ctx, t), nil
	}
}

func (n *Notifier) resolveTrip(ctx context.Context, ev trip.Event) (trip.Trip, error) {
	if ev.Trip != nil {
		t := *ev.Trip
		if t.ID == "" {
			t.ID = ev.TripID
		}
		return t, nil
	}
	t, err := n.directory.Trip(ctx, ev.TripID)
	if err != nil {
		return trip.Trip{}, fmt.Errorf("failed to load trip %s: %w", ev.TripID, err)
	}
	t.ID = ev.TripID
	return t, nil
}

// resolveActor tolerates an unknown user: the id is still enough to route.
func (n *Notifier) resolveActor(ctx context.Context, userID string) (trip.User, error) {
	u, err := n.directory.User(ctx, userID)
	switch {
	case err == nil:
		u.ID = userID
		return u, nil
	case errors.Is(err, dispatch.ErrNotFound):
		n.logger.Warn("Acting user not found; rendering without name", "user_id", userID)
		return trip.User{ID: userID}, nil
	default:
		return trip.User{}, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
}

// lookupUser never fails; an unknown user renders with an empty name.
func (n *Notifier) lookupUser(ctx context.Context, userID string) trip.User {
	u, err := n.directory.User(ctx, userID)
	if err != nil {
		n.logger.Warn("User lookup failed; rendering without name", "user_id", userID, "err", err)
		return trip.User{ID: userID}
	}
	u.ID = userID
	return u
}

func (n *Notifier) fanOut(ctx context.Context, event trip.EventType, t trip.Trip, out []outbound) notification.Summary {
	log := n.logger.With("fanout_id", uuid.NewString(), "event", string(event), "trip_id", t.ID)

	results := make([][]notification.DeliveryResult, len(out))
	var g errgroup.Group
	g.SetLimit(n.cfg.MaxConcurrentRecipients)
	for i, o := range out {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Error("Recipient fan-out panicked", "user_id", o.userID, "panic", p)
				}
			}()
			results[i] = n.users.NotifyUser(ctx, o.userID, o.msg)
			return nil
		})
	}
	_ = g.Wait()

	summary := notification.Summary{Recipients: len(out)}
	for _, r := range results {
		summary.Add(r)
	}
	log.Info("Fan-out complete",
		"recipients", summary.Recipients,
		"attempted", summary.Attempted,
		"delivered", summary.Delivered,
		"failed", summary.Failed,
	)
	return summary
}

package tripevents_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-trip-notification-service/internal/storage/memory"
	"github.com/tinywideclouds/go-trip-notification-service/internal/tripevents"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

type call struct {
	userID string
	msg    notification.Message
}

// fakeUsers records NotifyUser calls. Users listed in failing get a failed
// single-device result; everyone else a delivered one.
type fakeUsers struct {
	mu      sync.Mutex
	calls   []call
	failing map[string]bool
}

func (f *fakeUsers) NotifyUser(_ context.Context, userID string, msg notification.Message) []notification.DeliveryResult {
	f.mu.Lock()
	f.calls = append(f.calls, call{userID: userID, msg: msg})
	f.mu.Unlock()
	if f.failing[userID] {
		return []notification.DeliveryResult{{UserID: userID, Token: "t-" + userID, Err: errors.New("provider down")}}
	}
	return []notification.DeliveryResult{{UserID: userID, Token: "t-" + userID, Success: true}}
}

func (f *fakeUsers) userIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ids = append(ids, c.userID)
	}
	sort.Strings(ids)
	return ids
}

func (f *fakeUsers) callFor(t *testing.T, userID string) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.userID == userID {
			return c
		}
	}
	t.Fatalf("no notification for user %s", userID)
	return call{}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var departure = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newFixture(cfg tripevents.Config) (*tripevents.Notifier, *fakeUsers, *memory.Directory) {
	dir := memory.NewDirectory()
	dir.PutUser(trip.User{ID: "1", Name: "Ivan"})
	dir.PutUser(trip.User{ID: "2", Name: "Olga"})
	dir.PutUser(trip.User{ID: "3", Name: "Petr"})
	users := &fakeUsers{failing: map[string]bool{}}
	n := tripevents.NewNotifier(users, dir, tripevents.NewRouteMatcher(dir), cfg, newTestLogger())
	return n, users, dir
}

func trip7() trip.Trip {
	return trip.Trip{
		ID: "7", DriverID: "1", From: "A", To: "B",
		DepartureTime: departure, Price: 12.5, Passengers: []string{"2", "3"},
	}
}

func TestOnTripCompleted(t *testing.T) {
	n, users, _ := newFixture(tripevents.Config{})

	summary := n.OnTripCompleted(context.Background(), trip7())

	assert.Equal(t, []string{"1", "2", "3"}, users.userIDs())
	for _, id := range []string{"1", "2", "3"} {
		c := users.callFor(t, id)
		assert.Equal(t, "trip_completed", c.msg.Data["type"])
		assert.Equal(t, "7", c.msg.Data["trip_id"])
		assert.Equal(t, "Trip completed", c.msg.Title)
		assert.Equal(t, "A → B completed successfully", c.msg.Body)
	}
	assert.Equal(t, notification.Summary{Recipients: 3, Attempted: 3, Delivered: 3}, summary)
}

func TestOnTripCancelled(t *testing.T) {
	ctx := context.Background()

	t.Run("By the driver", func(t *testing.T) {
		n, users, _ := newFixture(tripevents.Config{})

		summary := n.OnTripCancelled(ctx, trip7(), trip.User{ID: "1", Name: "Ivan"})

		assert.Equal(t, 3, summary.Recipients)
		assert.Equal(t, []string{"1", "2", "3"}, users.userIDs())

		driver := users.callFor(t, "1")
		assert.Equal(t, "You cancelled A → B", driver.msg.Body)
		assert.NotContains(t, driver.msg.Data, "cancelled_by")

		passenger := users.callFor(t, "2")
		assert.Equal(t, "Trip cancelled", passenger.msg.Title)
		assert.Equal(t, "A → B was cancelled", passenger.msg.Body)
		assert.Equal(t, "Ivan", passenger.msg.Data["cancelled_by"])
		assert.Equal(t, "trip_cancelled", passenger.msg.Data["type"])
	})

	t.Run("By someone else", func(t *testing.T) {
		n, users, _ := newFixture(tripevents.Config{})

		summary := n.OnTripCancelled(ctx, trip7(), trip.User{ID: "99", Name: "Support"})

		assert.Equal(t, 2, summary.Recipients)
		assert.Equal(t, []string{"2", "3"}, users.userIDs())
	})
}

func TestOnTripBooked(t *testing.T) {
	n, users, _ := newFixture(tripevents.Config{MaxConcurrentRecipients: 1})
	tr := trip7()

	summary := n.OnTripBooked(context.Background(), tr, trip.User{ID: "3", Name: "Petr"})

	assert.Equal(t, 2, summary.Recipients)
	// With one worker the driver is notified first.
	require.Len(t, users.calls, 2)
	assert.Equal(t, "1", users.calls[0].userID)

	driver := users.calls[0].msg
	assert.Equal(t, "New booking", driver.Title)
	assert.Equal(t, "Petr booked a seat", driver.Body)
	assert.Equal(t, "trip_booked", driver.Data["type"])
	assert.Equal(t, "3", driver.Data["passenger_id"])
	assert.Equal(t, "Petr", driver.Data["passenger_name"])

	passenger := users.calls[1].msg
	assert.Equal(t, "Trip booked", passenger.Title)
	assert.Equal(t, "You booked A → B", passenger.Body)
	assert.Equal(t, "booking_confirmed", passenger.Data["type"])
	assert.Equal(t, "2026-05-01T09:00:00Z", passenger.Data["departure_time"])
}

func TestOnTripCreated(t *testing.T) {
	ctx := context.Background()
	n, users, dir := newFixture(tripevents.Config{})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "2", From: "A", To: "B", DepartureDate: departure})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "2", From: "", To: "B", DepartureDate: departure})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "3", From: "A", To: "C", DepartureDate: departure})

	summary, err := n.OnTripCreated(ctx, trip7())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Recipients)
	c := users.callFor(t, "2")
	assert.Equal(t, "New trip on your route", c.msg.Title)
	assert.Equal(t, "Driver Ivan created trip A → B", c.msg.Body)
	assert.Equal(t, map[string]string{
		"type":           "new_trip",
		"trip_id":        "7",
		"from":           "A",
		"to":             "B",
		"departure_time": "2026-05-01T09:00:00Z",
		"price":          "12.5",
	}, c.msg.Data)
}

func TestOnTripCreated_UnknownDriverRendersEmptyName(t *testing.T) {
	n, users, dir := newFixture(tripevents.Config{})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "2", From: "A", To: "B", DepartureDate: departure})
	tr := trip7()
	tr.DriverID = "404"

	_, err := n.OnTripCreated(context.Background(), tr)

	require.NoError(t, err)
	assert.Equal(t, "Driver  created trip A → B", users.callFor(t, "2").msg.Body)
}

func TestFanOut_FailureIsolation(t *testing.T) {
	n, users, _ := newFixture(tripevents.Config{MaxConcurrentRecipients: 2})
	users.failing["2"] = true
	tr := trip7()
	tr.Passengers = []string{"2", "3", "4", "5"}

	summary := n.OnTripCompleted(context.Background(), tr)

	assert.Len(t, users.userIDs(), 5)
	assert.Equal(t, notification.Summary{Recipients: 5, Attempted: 5, Delivered: 4, Failed: 1}, summary)
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("Booked event resolves trip and passenger", func(t *testing.T) {
		n, users, dir := newFixture(tripevents.Config{})
		dir.PutTrip(trip7())

		summary, err := n.Handle(ctx, trip.Event{Type: trip.EventBooked, TripID: "7", ActorID: "3"})

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Recipients)
		assert.Equal(t, "Petr", users.callFor(t, "1").msg.Data["passenger_name"])
	})

	t.Run("Inline snapshot is used for a deleted trip", func(t *testing.T) {
		n, users, _ := newFixture(tripevents.Config{})
		snap := trip7()

		_, err := n.Handle(ctx, trip.Event{Type: trip.EventCancelled, TripID: "7", ActorID: "1", Trip: &snap})

		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, users.userIDs())
	})

	t.Run("Unknown actor still routes by id", func(t *testing.T) {
		n, users, dir := newFixture(tripevents.Config{})
		dir.PutTrip(trip7())

		_, err := n.Handle(ctx, trip.Event{Type: trip.EventBooked, TripID: "7", ActorID: "42"})

		require.NoError(t, err)
		assert.Equal(t, "booking_confirmed", users.callFor(t, "42").msg.Data["type"])
		assert.Equal(t, " booked a seat", users.callFor(t, "1").msg.Body)
	})

	t.Run("Missing trip", func(t *testing.T) {
		n, users, _ := newFixture(tripevents.Config{})

		_, err := n.Handle(ctx, trip.Event{Type: trip.EventCompleted, TripID: "nope"})

		assert.ErrorIs(t, err, dispatch.ErrNotFound)
		assert.Empty(t, users.userIDs())
	})

	t.Run("Invalid event", func(t *testing.T) {
		n, _, _ := newFixture(tripevents.Config{})

		_, err := n.Handle(ctx, trip.Event{Type: trip.EventCancelled, TripID: "7"})

		assert.ErrorIs(t, err, trip.ErrInvalidEvent)
	})
}

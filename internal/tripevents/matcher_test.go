package tripevents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-trip-notification-service/internal/storage/memory"
	"github.com/tinywideclouds/go-trip-notification-service/internal/tripevents"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

func TestFindMatchingPassengers(t *testing.T) {
	ctx := context.Background()
	d := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	dir := memory.NewDirectory()
	dir.AddSearchPreference(trip.SearchPreference{UserID: "10", From: "Paris", To: "Lyon", DepartureDate: d})
	matcher := tripevents.NewRouteMatcher(dir)

	t.Run("Substring containment on the same date", func(t *testing.T) {
		users, err := matcher.FindMatchingPassengers(ctx, trip.Trip{
			ID: "7", From: "Paris Gare de Lyon", To: "Lyon Part-Dieu", DepartureTime: d,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"10"}, users)
	})

	t.Run("Trip after the preferred date does not match", func(t *testing.T) {
		users, err := matcher.FindMatchingPassengers(ctx, trip.Trip{
			ID: "8", From: "Paris Gare de Lyon", To: "Lyon Part-Dieu", DepartureTime: d.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("Trip before the preferred date matches", func(t *testing.T) {
		users, err := matcher.FindMatchingPassengers(ctx, trip.Trip{
			ID: "9", From: "Paris", To: "Lyon", DepartureTime: d.Add(-24 * time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"10"}, users)
	})
}

func TestFindMatchingPassengers_SetSemantics(t *testing.T) {
	ctx := context.Background()
	d := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	dir := memory.NewDirectory()
	dir.AddSearchPreference(trip.SearchPreference{UserID: "2", From: "Paris", To: "Lyon", DepartureDate: d})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "1", From: "Par", To: "Ly", DepartureDate: d})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "2", From: "", To: "", DepartureDate: d})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "3", From: "paris", To: "lyon", DepartureDate: d})
	dir.AddSearchPreference(trip.SearchPreference{UserID: "4", From: "Nice", To: "Lyon", DepartureDate: d})

	users, err := tripevents.NewRouteMatcher(dir).FindMatchingPassengers(ctx, trip.Trip{
		From: "Paris", To: "Lyon", DepartureTime: d,
	})

	require.NoError(t, err)
	// Matching is case-sensitive, and each user appears once.
	assert.Equal(t, []string{"2", "1"}, users)
}

func TestMatches(t *testing.T) {
	d := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tr := trip.Trip{From: "Paris Gare de Lyon", To: "Marseille", DepartureTime: d}

	// "Lyon" appears in the departure station name.
	assert.True(t, tripevents.Matches(trip.SearchPreference{From: "Lyon", To: "Marseille", DepartureDate: d}, tr))
	assert.False(t, tripevents.Matches(trip.SearchPreference{From: "Lyon", To: "Nice", DepartureDate: d}, tr))
}

// Package tripevents maps trip lifecycle events to recipients and messages
// and drives the per-recipient fan-out.
package tripevents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

// RouteMatcher finds users whose stored search preferences cover a trip.
type RouteMatcher struct {
	directory dispatch.Directory
}

func NewRouteMatcher(directory dispatch.Directory) *RouteMatcher {
	return &RouteMatcher{directory: directory}
}

// FindMatchingPassengers returns the distinct ids of users with at least one
// preference whose from and to are contained in the trip's from and to, and
// whose departure date is not before the trip's departure time. Ids are in
// first-match order.
func (m *RouteMatcher) FindMatchingPassengers(ctx context.Context, t trip.Trip) ([]string, error) {
	prefs, err := m.directory.SearchPreferences(ctx, t.DepartureTime)
	if err != nil {
		return nil, fmt.Errorf("failed to load search preferences: %w", err)
	}

	seen := make(map[string]struct{})
	var users []string
	for _, p := range prefs {
		if !Matches(p, t) {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		users = append(users, p.UserID)
	}
	return users, nil
}

// Matches is plain, case-sensitive substring containment. "Paris" matches
// "Paris Gare de Lyon"; so does "Lyon".
func Matches(p trip.SearchPreference, t trip.Trip) bool {
	return strings.Contains(t.From, p.From) &&
		strings.Contains(t.To, p.To) &&
		!p.DepartureDate.Before(t.DepartureTime)
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

// Directory implements dispatch.Directory over maps seeded by the caller.
type Directory struct {
	mu          sync.RWMutex
	users       map[string]trip.User
	trips       map[string]trip.Trip
	preferences []trip.SearchPreference
}

func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]trip.User),
		trips: make(map[string]trip.Trip),
	}
}

func (d *Directory) PutUser(u trip.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) PutTrip(t trip.Trip) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trips[t.ID] = t
}

func (d *Directory) AddSearchPreference(p trip.SearchPreference) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preferences = append(d.preferences, p)
}

func (d *Directory) Trip(_ context.Context, tripID string) (trip.Trip, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.trips[tripID]
	if !ok {
		return trip.Trip{}, fmt.Errorf("trip %s: %w", tripID, dispatch.ErrNotFound)
	}
	return t, nil
}

func (d *Directory) User(_ context.Context, userID string) (trip.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return trip.User{}, fmt.Errorf("user %s: %w", userID, dispatch.ErrNotFound)
	}
	return u, nil
}

// SearchPreferences returns every stored preference; the route matcher
// applies the date predicate.
func (d *Directory) SearchPreferences(_ context.Context, _ time.Time) ([]trip.SearchPreference, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]trip.SearchPreference, len(d.preferences))
	copy(out, d.preferences)
	return out, nil
}

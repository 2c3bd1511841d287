// Package memory provides process-local implementations of the registry and
// directory, used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

// Registry implements dispatch.DeviceRegistry. Every mutation holds the
// write lock, so readers never observe a token with two owners.
type Registry struct {
	mu      sync.RWMutex
	byToken map[string]notification.Device
	byUser  map[string]map[string]struct{}
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byToken: make(map[string]notification.Device),
		byUser:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (r *Registry) Register(_ context.Context, device notification.Device) (string, error) {
	if device.UserID == "" || device.Token == "" {
		return "", dispatch.ErrInvalidDevice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var previousOwner string
	if existing, ok := r.byToken[device.Token]; ok {
		r.removeLocked(existing.UserID, existing.Token)
		if existing.UserID != device.UserID {
			previousOwner = existing.UserID
		}
	}

	device.UpdatedAt = r.now()
	r.byToken[device.Token] = device
	tokens, ok := r.byUser[device.UserID]
	if !ok {
		tokens = make(map[string]struct{})
		r.byUser[device.UserID] = tokens
	}
	tokens[device.Token] = struct{}{}

	return previousOwner, nil
}

func (r *Registry) Unregister(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byToken[token]
	if !ok || existing.UserID != userID {
		return nil
	}
	r.removeLocked(userID, token)
	return nil
}

func (r *Registry) TokensFor(_ context.Context, userID string) ([]notification.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]notification.Device, 0, len(r.byUser[userID]))
	for token := range r.byUser[userID] {
		devices = append(devices, r.byToken[token])
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Token < devices[j].Token })
	return devices, nil
}

// Len returns the number of stored records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}

func (r *Registry) removeLocked(userID, token string) {
	delete(r.byToken, token)
	if tokens, ok := r.byUser[userID]; ok {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(r.byUser, userID)
		}
	}
}

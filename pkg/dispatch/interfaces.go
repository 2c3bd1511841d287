// Package dispatch defines the collaborator contracts of the fan-out engine.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

var (
	// ErrInvalidToken marks a send the provider rejected because the device
	// token is dead. Callers may prune the token.
	ErrInvalidToken = errors.New("device token rejected by provider")

	// ErrInvalidDevice is returned by registries for an empty user or token.
	ErrInvalidDevice = errors.New("device requires user id and token")

	// ErrNotFound is returned by a Directory for missing users or trips.
	ErrNotFound = errors.New("not found")
)

// Sender delivers one notification to one device, for a specific platform
// (e.g., Apple's APNS, Google's FCM).
type Sender interface {
	Send(ctx context.Context, device notification.Device, msg notification.Message) error
}

// DeviceRegistry manages the user → device token mapping.
// A token string is owned by at most one user at any time.
type DeviceRegistry interface {
	// Register stores the device for its user, replacing any existing record
	// for the same token regardless of owner. It returns the user id that
	// previously owned the token when that was a different user.
	Register(ctx context.Context, device notification.Device) (previousOwner string, err error)

	// Unregister deletes the record only when it is owned by userID.
	Unregister(ctx context.Context, userID, token string) error

	// TokensFor lists every device currently owned by userID.
	TokensFor(ctx context.Context, userID string) ([]notification.Device, error)
}

// Directory gives read access to users, trips and search preferences.
type Directory interface {
	Trip(ctx context.Context, tripID string) (trip.Trip, error)
	User(ctx context.Context, userID string) (trip.User, error)

	// SearchPreferences returns preferences whose departure date is not
	// before notBefore. Implementations may return a superset.
	SearchPreferences(ctx context.Context, notBefore time.Time) ([]trip.SearchPreference, error)
}

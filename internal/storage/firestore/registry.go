// Package firestore implements the device registry and directory on
// Google Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

const deviceCollection = "device_tokens"

// Registry implements dispatch.DeviceRegistry using Google Cloud Firestore.
// Documents are keyed by the token hash, so one token maps to exactly one
// document and therefore one owner.
type Registry struct {
	client *firestore.Client
	now    func() time.Time
}

func NewRegistry(client *firestore.Client) *Registry {
	return &Registry{client: client, now: time.Now}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	UserID    string    `firestore:"user_id"`
	Token     string    `firestore:"token"`
	Platform  string    `firestore:"platform,omitempty"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *Registry) Register(ctx context.Context, device notification.Device) (string, error) {
	if device.UserID == "" || device.Token == "" {
		return "", dispatch.ErrInvalidDevice
	}

	ref := s.deviceRef(device.Token)
	record := deviceRecord{
		UserID:    device.UserID,
		Token:     device.Token,
		Platform:  device.Platform,
		UpdatedAt: s.now(),
	}

	var previousOwner string
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		previousOwner = ""
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var existing deviceRecord
			if err := snap.DataTo(&existing); err == nil && existing.UserID != device.UserID {
				previousOwner = existing.UserID
			}
		}
		return tx.Set(ref, record)
	})
	if err != nil {
		return "", fmt.Errorf("firestore register failed: %w", err)
	}
	return previousOwner, nil
}

func (s *Registry) Unregister(ctx context.Context, userID, token string) error {
	ref := s.deviceRef(token)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var existing deviceRecord
		if err := snap.DataTo(&existing); err != nil {
			return err
		}
		// Another user's token: silently ignored.
		if existing.UserID != userID {
			return nil
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("firestore unregister failed: %w", err)
	}
	return nil
}

func (s *Registry) TokensFor(ctx context.Context, userID string) ([]notification.Device, error) {
	iter := s.client.Collection(deviceCollection).Where("user_id", "==", userID).Documents(ctx)
	defer iter.Stop()

	devices := make([]notification.Device, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// Corrupt rows are skipped.
			continue
		}
		devices = append(devices, notification.Device{
			UserID:    record.UserID,
			Token:     record.Token,
			Platform:  record.Platform,
			UpdatedAt: record.UpdatedAt,
		})
	}
	return devices, nil
}

// deviceRef: device_tokens/{tokenHash}
func (s *Registry) deviceRef(token string) *firestore.DocumentRef {
	return s.client.Collection(deviceCollection).Doc(hashToken(token))
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}

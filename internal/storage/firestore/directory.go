package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

const (
	userCollection       = "users"
	tripCollection       = "trips"
	preferenceCollection = "search_preferences"
)

// Directory implements dispatch.Directory over the users, trips and
// search_preferences collections written by the trip platform.
type Directory struct {
	client *firestore.Client
}

func NewDirectory(client *firestore.Client) *Directory {
	return &Directory{client: client}
}

func (d *Directory) Trip(ctx context.Context, tripID string) (trip.Trip, error) {
	var t trip.Trip
	if err := d.get(ctx, tripCollection, tripID, &t); err != nil {
		return trip.Trip{}, err
	}
	t.ID = tripID
	return t, nil
}

func (d *Directory) User(ctx context.Context, userID string) (trip.User, error) {
	var u trip.User
	if err := d.get(ctx, userCollection, userID, &u); err != nil {
		return trip.User{}, err
	}
	u.ID = userID
	return u, nil
}

func (d *Directory) SearchPreferences(ctx context.Context, notBefore time.Time) ([]trip.SearchPreference, error) {
	iter := d.client.Collection(preferenceCollection).
		Where("departure_date", ">=", notBefore).
		Documents(ctx)
	defer iter.Stop()

	var prefs []trip.SearchPreference
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var p trip.SearchPreference
		if err := doc.DataTo(&p); err != nil {
			continue
		}
		prefs = append(prefs, p)
	}
	return prefs, nil
}

func (d *Directory) get(ctx context.Context, collection, id string, dest interface{}) error {
	snap, err := d.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s/%s: %w", collection, id, dispatch.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("firestore get %s/%s failed: %w", collection, id, err)
	}
	if err := snap.DataTo(dest); err != nil {
		return fmt.Errorf("firestore decode %s/%s failed: %w", collection, id, err)
	}
	return nil
}

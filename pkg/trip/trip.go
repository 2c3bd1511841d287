// Package trip contains the read-only ride-sharing entities the notification
// service targets, and the lifecycle events that trigger a fan-out.
package trip

import (
	"time"
)

// Trip is a snapshot of a trip at the moment an event is handled.
type Trip struct {
	ID             string    `json:"id" firestore:"-"`
	DriverID       string    `json:"driver_id" firestore:"driver_id"`
	From           string    `json:"from" firestore:"from"`
	To             string    `json:"to" firestore:"to"`
	DepartureTime  time.Time `json:"departure_time" firestore:"departure_time"`
	Price          float64   `json:"price" firestore:"price"`
	AvailableSeats int       `json:"available_seats" firestore:"available_seats"`
	Status         string    `json:"status" firestore:"status"`
	Passengers     []string  `json:"passengers" firestore:"passengers"`
}

// User is the subset of a platform user the notifier needs.
type User struct {
	ID   string `json:"id" firestore:"-"`
	Name string `json:"name" firestore:"name"`
}

// SearchPreference is a route/date filter a user declared while searching.
type SearchPreference struct {
	UserID        string    `json:"user_id" firestore:"user_id"`
	From          string    `json:"from" firestore:"from"`
	To            string    `json:"to" firestore:"to"`
	DepartureDate time.Time `json:"departure_date" firestore:"departure_date"`
}

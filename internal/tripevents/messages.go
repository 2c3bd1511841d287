package tripevents

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
)

// data.type values understood by the mobile and web clients.
const (
	TypeNewTrip          = "new_trip"
	TypeTripBooked       = "trip_booked"
	TypeBookingConfirmed = "booking_confirmed"
	TypeTripCancelled    = "trip_cancelled"
	TypeTripCompleted    = "trip_completed"
	TypeTest             = "test"
)

func baseData(kind string, t trip.Trip) map[string]string {
	return map[string]string{
		"type":    kind,
		"trip_id": t.ID,
		"from":    t.From,
		"to":      t.To,
	}
}

func route(t trip.Trip) string {
	return fmt.Sprintf("%s → %s", t.From, t.To)
}

// NewTripMessage is sent to passengers whose search preferences match.
func NewTripMessage(t trip.Trip, driver trip.User) notification.Message {
	data := baseData(TypeNewTrip, t)
	data["departure_time"] = t.DepartureTime.UTC().Format(time.RFC3339)
	data["price"] = strconv.FormatFloat(t.Price, 'f', -1, 64)
	return notification.Message{
		Title: "New trip on your route",
		Body:  fmt.Sprintf("Driver %s created trip %s", driver.Name, route(t)),
		Data:  data,
	}
}

func DriverBookingMessage(t trip.Trip, passenger trip.User) notification.Message {
	data := baseData(TypeTripBooked, t)
	data["passenger_id"] = passenger.ID
	data["passenger_name"] = passenger.Name
	return notification.Message{
		Title: "New booking",
		Body:  fmt.Sprintf("%s booked a seat", passenger.Name),
		Data:  data,
	}
}

func BookingConfirmedMessage(t trip.Trip) notification.Message {
	data := baseData(TypeBookingConfirmed, t)
	data["departure_time"] = t.DepartureTime.UTC().Format(time.RFC3339)
	return notification.Message{
		Title: "Trip booked",
		Body:  fmt.Sprintf("You booked %s", route(t)),
		Data:  data,
	}
}

func PassengerCancelledMessage(t trip.Trip, cancelledBy trip.User) notification.Message {
	data := baseData(TypeTripCancelled, t)
	data["cancelled_by"] = cancelledBy.Name
	return notification.Message{
		Title: "Trip cancelled",
		Body:  fmt.Sprintf("%s was cancelled", route(t)),
		Data:  data,
	}
}

func DriverCancelledMessage(t trip.Trip) notification.Message {
	return notification.Message{
		Title: "Trip cancelled",
		Body:  fmt.Sprintf("You cancelled %s", route(t)),
		Data:  baseData(TypeTripCancelled, t),
	}
}

func CompletedMessage(t trip.Trip) notification.Message {
	return notification.Message{
		Title: "Trip completed",
		Body:  fmt.Sprintf("%s completed successfully", route(t)),
		Data:  baseData(TypeTripCompleted, t),
	}
}

// TestMessage is the ad-hoc notification a user can send to their own devices.
func TestMessage() notification.Message {
	return notification.Message{
		Title: "Test notification",
		Body:  "This is a test notification",
		Data:  map[string]string{"type": TypeTest},
	}
}

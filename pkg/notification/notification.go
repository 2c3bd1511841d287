// Package notification contains the public domain models exchanged between
// the fan-out engine, the device registry and the platform senders.
package notification

import (
	"time"

	platform "github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Well-known platform tags. Any other value (including empty) is delivered
// through FCM.
const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
)

// Device is one registered app instance owned by a user.
// For PlatformWeb the Token holds the JSON-encoded push subscription.
type Device struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is rendered once per recipient and never persisted.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Content adapts the message to the shared platform content type used by the
// push senders.
func (m Message) Content() platform.NotificationContent {
	return platform.NotificationContent{
		Title: m.Title,
		Body:  m.Body,
	}
}

// DeliveryResult is the outcome of one send to one device.
type DeliveryResult struct {
	UserID   string
	Token    string
	Platform string
	Success  bool
	Err      error
}

// Summary aggregates the results of one fan-out.
type Summary struct {
	Recipients int
	Attempted  int
	Delivered  int
	Failed     int
}

// Add folds delivery results into the summary.
func (s *Summary) Add(results []DeliveryResult) {
	for _, r := range results {
		s.Attempted++
		if r.Success {
			s.Delivered++
		} else {
			s.Failed++
		}
	}
}

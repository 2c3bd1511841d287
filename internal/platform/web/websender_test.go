package web_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-trip-notification-service/internal/platform/web"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
	"github.com/tinywideclouds/go-trip-notification-service/tripnotificationservice/config"
)

// subscriptionToken builds a browser-style subscription with real P-256 keys
// so payload encryption succeeds.
func subscriptionToken(t *testing.T, endpoint string) string {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	raw, err := json.Marshal(webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	})
	require.NoError(t, err)
	return string(raw)
}

func TestSend_Lifecycle(t *testing.T) {
	// Simulates the browser vendor's push service
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/success":
			w.WriteHeader(http.StatusCreated)
		case "/expired":
			w.WriteHeader(http.StatusGone)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer mockServer.Close()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	sender := web.NewSender(config.VapidConfig{
		PrivateKey:      privateKey,
		PublicKey:       publicKey,
		SubscriberEmail: "mailto:test-runner@tinywideclouds.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	msg := notification.Message{Title: "Trip cancelled", Body: "A → B was cancelled", Data: map[string]string{"trip_id": "7"}}

	device := func(path string) notification.Device {
		return notification.Device{UserID: "1", Platform: notification.PlatformWeb, Token: subscriptionToken(t, mockServer.URL+path)}
	}

	t.Run("Delivered", func(t *testing.T) {
		assert.NoError(t, sender.Send(ctx, device("/success"), msg))
	})

	t.Run("Expired endpoint is a dead token", func(t *testing.T) {
		assert.ErrorIs(t, sender.Send(ctx, device("/expired"), msg), dispatch.ErrInvalidToken)
	})

	t.Run("Server error is a plain failure", func(t *testing.T) {
		err := sender.Send(ctx, device("/error"), msg)
		require.Error(t, err)
		assert.NotErrorIs(t, err, dispatch.ErrInvalidToken)
	})

	t.Run("Unparseable token is a dead token", func(t *testing.T) {
		bad := notification.Device{UserID: "1", Platform: notification.PlatformWeb, Token: "not-json"}
		assert.ErrorIs(t, sender.Send(ctx, bad, msg), dispatch.ErrInvalidToken)
	})
}

func TestParseSubscription(t *testing.T) {
	_, err := web.ParseSubscription(`{"endpoint":"https://push.example/abc"}`)
	assert.Error(t, err)

	sub, err := web.ParseSubscription(`{"endpoint":"https://push.example/abc","keys":{"p256dh":"k","auth":"a"}}`)
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/abc", sub.Endpoint)
}

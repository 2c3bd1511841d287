package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-trip-notification-service/internal/platform/web"
	"github.com/tinywideclouds/go-trip-notification-service/internal/tripevents"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

type DeviceAPI struct {
	Registry dispatch.DeviceRegistry
	Notifier tripevents.UserNotifier
	Logger   *slog.Logger
}

func NewDeviceAPI(registry dispatch.DeviceRegistry, notifier tripevents.UserNotifier, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		Registry: registry,
		Notifier: notifier,
		Logger:   logger,
	}
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform,omitempty"`
}

type UnregisterDeviceRequest struct {
	Token string `json:"token"`
}

type TestNotificationResponse struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
}

func (api *DeviceAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	platform := strings.ToLower(req.Platform)
	if platform == notification.PlatformWeb {
		// Web tokens are whole subscription objects; the keys must exist.
		if _, err := web.ParseSubscription(req.Token); err != nil {
			api.Logger.Warn("Register: invalid web subscription", "user", userID, "err", err)
			response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
			return
		}
	}

	previous, err := api.Registry.Register(ctx, notification.Device{
		UserID:   userID,
		Token:    req.Token,
		Platform: platform,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidDevice) {
			response.WriteJSONError(w, http.StatusBadRequest, "invalid device")
			return
		}
		api.Logger.Error("failed to register device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	if previous != "" {
		api.Logger.Info("Register: token moved between users", "user", userID, "previous_owner", previous)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *DeviceAPI) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UnregisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Registry.Unregister(ctx, userID, req.Token); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister
		api.Logger.Warn("failed to unregister device", "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendTest pushes a fixed test notification to every device of the caller.
func (api *DeviceAPI) SendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserIDFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var summary notification.Summary
	summary.Add(api.Notifier.NotifyUser(ctx, userID, tripevents.TestMessage()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(TestNotificationResponse{
		Attempted: summary.Attempted,
		Delivered: summary.Delivered,
	})
}

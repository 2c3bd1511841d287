// Package platform routes a push to the sender that speaks the device's
// platform protocol.
package platform

import (
	"context"
	"strings"

	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/notification"
)

// Router is a dispatch.Sender that delegates by Device.Platform. Devices with
// no platform, or a platform nobody registered, go to the fallback (FCM).
type Router struct {
	fallback dispatch.Sender
	senders  map[string]dispatch.Sender
}

func NewRouter(fallback dispatch.Sender) *Router {
	return &Router{
		fallback: fallback,
		senders:  make(map[string]dispatch.Sender),
	}
}

// Route registers sender for platform. Not safe to call once sends have started.
func (r *Router) Route(platform string, sender dispatch.Sender) *Router {
	r.senders[strings.ToLower(platform)] = sender
	return r
}

func (r *Router) Send(ctx context.Context, device notification.Device, msg notification.Message) error {
	if s, ok := r.senders[strings.ToLower(device.Platform)]; ok {
		return s.Send(ctx, device, msg)
	}
	return r.fallback.Send(ctx, device, msg)
}

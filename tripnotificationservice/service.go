// Package tripnotificationservice assembles the HTTP surface and the trip-event
// pipeline into one runnable service.
package tripnotificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-trip-notification-service/internal/api"
	"github.com/tinywideclouds/go-trip-notification-service/internal/delivery"
	"github.com/tinywideclouds/go-trip-notification-service/internal/pipeline"
	"github.com/tinywideclouds/go-trip-notification-service/internal/tripevents"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/dispatch"
	"github.com/tinywideclouds/go-trip-notification-service/pkg/trip"
	"github.com/tinywideclouds/go-trip-notification-service/tripnotificationservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[trip.Event]
	notifier        *tripevents.Notifier
	logger          *slog.Logger
}

// New assembles the service. The registry and sender are already decorated
// (cache, platform routing) by the caller.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	registry dispatch.DeviceRegistry,
	directory dispatch.Directory,
	sender dispatch.Sender,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Fan-out core
	users := delivery.NewUserNotifier(registry, sender, delivery.Config{
		SendTimeout:        cfg.Delivery.SendTimeout,
		MaxConcurrentSends: cfg.Delivery.MaxConcurrentSends,
	}, logger)
	notifier := tripevents.NewNotifier(users, directory, tripevents.NewRouteMatcher(directory), tripevents.Config{
		MaxConcurrentRecipients: cfg.Delivery.MaxConcurrentRecipients,
	}, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.TripEventTransformer,
		pipeline.NewProcessor(notifier, logger),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API (device registration, test notification)
	deviceAPI := api.NewDeviceAPI(registry, users, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/devices/register", deviceAPI.Register)
	handle("POST /api/v1/devices/unregister", deviceAPI.Unregister)
	handle("POST /api/v1/notifications/test", deviceAPI.SendTest)

	// Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Just returns 200 OK with CORS headers handled by middleware
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		notifier:        notifier,
		logger:          logger,
	}, nil
}

// Notifier exposes the trip event notifier for in-process callers.
func (w *Wrapper) Notifier() *tripevents.Notifier {
	return w.notifier
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}

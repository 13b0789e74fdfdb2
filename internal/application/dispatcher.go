package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// EventHandler processes one class of provider webhook events.
type EventHandler interface {
	// CanHandle returns true if this handler can process the given event type.
	CanHandle(eventType string) bool

	// Handle processes the event. The dispatcher catches errors and panics;
	// a handler failure never fails the webhook acknowledgment.
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// EventDispatcher deduplicates inbound events and routes each one to exactly
// one handler. Unknown event types are acknowledged and ignored, never
// errors: the boundary contract with the provider is "ack receipt", not
// "ack success".
type EventDispatcher struct {
	store    ports.EventStore
	handlers []EventHandler
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewEventDispatcher creates a dispatcher with no handlers registered.
func NewEventDispatcher(store ports.EventStore, m *metrics.Metrics, logger zerolog.Logger) *EventDispatcher {
	return &EventDispatcher{
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// RegisterHandler adds a handler. Registration order is routing order.
func (d *EventDispatcher) RegisterHandler(handler EventHandler) {
	d.handlers = append(d.handlers, handler)
}

// Dispatch processes one inbound event. It always returns nil once routing
// completes; handler failures are recorded on the event's outcome and
// archived, not propagated.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) error {
	if event.ID != "" {
		fresh, err := d.store.RecordIfNew(ctx, event.ID)
		if err != nil {
			// Ledger failure biases toward processing (at-least-once).
			d.logger.Warn().Err(err).Str("eventId", event.ID).Msg("Idempotency check failed, processing anyway")
		} else if !fresh {
			d.metrics.EventsDeduplicated.Inc()
			d.logger.Info().
				Str("eventId", event.ID).
				Str("type", event.Type).
				Msg("Duplicate webhook event, acknowledged without processing")
			return nil
		}
	}

	handler := d.handlerFor(event.Type)
	if handler == nil {
		d.logger.Info().
			Str("type", event.Type).
			Str("eventId", event.ID).
			Msg("Unrecognized webhook event type, acknowledged and ignored")
		event.Outcome = domain.OutcomeSucceeded
	} else if err := d.safeHandle(ctx, handler, event); err != nil {
		event.Outcome = domain.OutcomeErrored
		event.Error = err.Error()
		d.logger.Error().
			Err(err).
			Str("type", event.Type).
			Str("eventId", event.ID).
			Msg("Webhook handler failed")
	} else {
		event.Outcome = domain.OutcomeSucceeded
	}

	d.metrics.EventsProcessed.WithLabelValues(event.Type, string(event.Outcome)).Inc()

	if err := d.store.Archive(ctx, event); err != nil {
		d.logger.Error().Err(err).Str("eventId", event.ID).Msg("Failed to archive webhook event")
	}
	return nil
}

func (d *EventDispatcher) handlerFor(eventType string) EventHandler {
	for _, handler := range d.handlers {
		if handler.CanHandle(eventType) {
			return handler
		}
	}
	return nil
}

func (d *EventDispatcher) safeHandle(ctx context.Context, handler EventHandler, event *domain.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

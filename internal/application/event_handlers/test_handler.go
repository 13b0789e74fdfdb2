package event_handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

// TestEventHandler acknowledges provider test pings.
type TestEventHandler struct {
	logger zerolog.Logger
}

// NewTestEventHandler creates the handler.
func NewTestEventHandler(logger zerolog.Logger) *TestEventHandler {
	return &TestEventHandler{logger: logger}
}

// CanHandle returns true if this handler can process the given event type.
func (h *TestEventHandler) CanHandle(eventType string) bool {
	return eventType == domain.EventTest
}

// Handle logs the ping. No state changes.
func (h *TestEventHandler) Handle(_ context.Context, event *domain.WebhookEvent) error {
	h.logger.Info().
		Str("apiMode", event.APIMode).
		Msg("Test webhook received")
	return nil
}

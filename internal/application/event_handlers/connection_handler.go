package event_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/application"
	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// ConnectionSuccessHandler handles connection_success events: it registers
// the connection, starts the export deadline, and kicks off the automatic
// export trigger when one is configured.
type ConnectionSuccessHandler struct {
	registry   ports.ConnectionRegistry
	monitor    *application.TimeoutMonitor
	trigger    *application.ExportTrigger
	autoExport bool
	logger     zerolog.Logger
}

// NewConnectionSuccessHandler creates the handler. trigger may be nil when
// automatic export is disabled.
func NewConnectionSuccessHandler(
	registry ports.ConnectionRegistry,
	monitor *application.TimeoutMonitor,
	trigger *application.ExportTrigger,
	autoExport bool,
	logger zerolog.Logger,
) *ConnectionSuccessHandler {
	return &ConnectionSuccessHandler{
		registry:   registry,
		monitor:    monitor,
		trigger:    trigger,
		autoExport: autoExport,
		logger:     logger,
	}
}

// CanHandle returns true if this handler can process the given event type.
func (h *ConnectionSuccessHandler) CanHandle(eventType string) bool {
	return eventType == domain.EventConnectionSuccess
}

// Handle processes a connection_success event.
func (h *ConnectionSuccessHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var data domain.ConnectionSuccessData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("failed to parse connection_success payload: %w", err)
	}
	if data.ConnectionID == "" {
		return fmt.Errorf("connection_success payload is missing org_connection_id")
	}

	conn, err := h.registry.UpsertOnConnectionSuccess(ctx, data.ConnectionID, data.UserID, data.PlatformType)
	if err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	if conn.Revoked() {
		// Terminal connections stay terminal; nothing to monitor or trigger.
		return nil
	}

	h.logger.Info().
		Str("connectionId", conn.ID).
		Str("userId", conn.UserID).
		Str("platform", conn.PlatformType).
		Msg("Connection established")

	h.monitor.Start(conn.ID, application.MonitorContext{
		UserID:   conn.UserID,
		Platform: conn.PlatformType,
	})

	if h.autoExport && h.trigger != nil {
		connectionID := conn.ID
		// The provider call must not block the webhook acknowledgment.
		go func() {
			if _, err := h.trigger.Trigger(context.Background(), connectionID); err != nil {
				h.logger.Warn().
					Err(err).
					Str("connectionId", connectionID).
					Msg("Automatic export trigger did not complete")
			}
		}()
	}
	return nil
}

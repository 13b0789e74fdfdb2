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

// ExportFailedHandler handles export_failed events.
type ExportFailedHandler struct {
	registry ports.ConnectionRegistry
	monitor  *application.TimeoutMonitor
	logger   zerolog.Logger
}

// NewExportFailedHandler creates the handler.
func NewExportFailedHandler(registry ports.ConnectionRegistry, monitor *application.TimeoutMonitor, logger zerolog.Logger) *ExportFailedHandler {
	return &ExportFailedHandler{
		registry: registry,
		monitor:  monitor,
		logger:   logger,
	}
}

// CanHandle returns true if this handler can process the given event type.
func (h *ExportFailedHandler) CanHandle(eventType string) bool {
	return eventType == domain.EventExportFailed
}

// Handle processes an export_failed event. Failure is a recorded terminal
// state, not an error condition for the service.
func (h *ExportFailedHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var data domain.ExportFailedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("failed to parse export_failed payload: %w", err)
	}
	if data.ConnectionID == "" {
		return fmt.Errorf("export_failed payload is missing org_connection_id")
	}

	conn, err := h.registry.ApplyExportFailure(ctx, data.ConnectionID, data.TaskID, data.FailureReason)
	if err != nil {
		return fmt.Errorf("failed to record export failure: %w", err)
	}
	h.monitor.Stop(data.ConnectionID)

	if conn == nil {
		h.logger.Warn().
			Str("connectionId", data.ConnectionID).
			Msg("Export failure reported for unknown connection")
		return nil
	}

	h.logger.Warn().
		Str("connectionId", data.ConnectionID).
		Str("taskId", data.TaskID).
		Str("reason", data.FailureReason).
		Msg("Export failed")
	return nil
}

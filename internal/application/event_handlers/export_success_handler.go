package event_handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/application"
	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// ExportSuccessHandler handles export_success events: it records the export,
// cancels the deadline, and starts the download-and-transform pipeline.
type ExportSuccessHandler struct {
	registry ports.ConnectionRegistry
	monitor  *application.TimeoutMonitor
	pipeline *application.TransformPipeline
	logger   zerolog.Logger

	// async controls whether the pipeline runs in its own goroutine. Tests
	// set it to false to observe the commit synchronously.
	async bool
}

// NewExportSuccessHandler creates the handler.
func NewExportSuccessHandler(
	registry ports.ConnectionRegistry,
	monitor *application.TimeoutMonitor,
	pipeline *application.TransformPipeline,
	logger zerolog.Logger,
) *ExportSuccessHandler {
	return &ExportSuccessHandler{
		registry: registry,
		monitor:  monitor,
		pipeline: pipeline,
		logger:   logger,
		async:    true,
	}
}

// CanHandle returns true if this handler can process the given event type.
func (h *ExportSuccessHandler) CanHandle(eventType string) bool {
	return eventType == domain.EventExportSuccess
}

// Handle processes an export_success event.
func (h *ExportSuccessHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var data domain.ExportSuccessData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("failed to parse export_success payload: %w", err)
	}
	if data.ConnectionID == "" {
		return fmt.Errorf("export_success payload is missing org_connection_id")
	}

	export := &domain.Export{
		ConnectionID: data.ConnectionID,
		Status:       domain.ExportSucceeded,
		DownloadLink: data.DownloadLink,
		Stats:        data.Stats,
		TaskID:       data.TaskID,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    data.ExpiresAt,
	}

	conn, err := h.registry.ApplyExportSuccess(ctx, export)
	if err != nil {
		return fmt.Errorf("failed to record export success: %w", err)
	}
	h.monitor.Stop(data.ConnectionID)

	// The connection state is the authoritative source for the user binding;
	// the payload's external_id is a fallback for exports that complete
	// before (or without) a connection_success.
	userID := data.UserID
	if conn != nil {
		if conn.Revoked() {
			h.logger.Warn().
				Str("connectionId", data.ConnectionID).
				Msg("Export completed for revoked connection, skipping ingest")
			return nil
		}
		if conn.UserID != "" {
			userID = conn.UserID
		}
	}
	if conn == nil {
		h.logger.Warn().
			Str("connectionId", data.ConnectionID).
			Msg("Export completed for unknown connection")
	}

	if data.DownloadLink == "" {
		h.logger.Warn().
			Str("connectionId", data.ConnectionID).
			Msg("Export success carried no download link, nothing to ingest")
		return nil
	}
	if userID == "" {
		h.logger.Warn().
			Str("connectionId", data.ConnectionID).
			Msg("Export has no user binding, skipping ingest")
		return nil
	}

	h.logger.Info().
		Str("connectionId", data.ConnectionID).
		Str("userId", userID).
		Str("taskId", data.TaskID).
		Msg("Export succeeded, starting ingest")

	if !h.async {
		return h.ingest(ctx, data.ConnectionID, userID, data.DownloadLink)
	}
	// The download can take minutes; the webhook is acknowledged now and
	// ingest failures surface in logs and metrics only.
	go func() {
		if err := h.ingest(context.Background(), data.ConnectionID, userID, data.DownloadLink); err != nil {
			h.logger.Error().
				Err(err).
				Str("connectionId", data.ConnectionID).
				Msg("Export ingest failed")
		}
	}()
	return nil
}

func (h *ExportSuccessHandler) ingest(ctx context.Context, connectionID, userID, downloadLink string) error {
	count, err := h.pipeline.Process(ctx, connectionID, userID, downloadLink)
	if err != nil {
		return err
	}
	h.logger.Info().
		Str("connectionId", connectionID).
		Str("userId", userID).
		Int("records", count).
		Msg("Export ingest complete")
	return nil
}

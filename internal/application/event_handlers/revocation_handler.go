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

// RevocationHandler handles authorization_revoked events: the connection is
// moved to its terminal state and the user's records from it are detached.
type RevocationHandler struct {
	registry ports.ConnectionRegistry
	records  ports.RecordStore
	cache    ports.RecordCache
	monitor  *application.TimeoutMonitor
	logger   zerolog.Logger
}

// NewRevocationHandler creates the handler.
func NewRevocationHandler(
	registry ports.ConnectionRegistry,
	records ports.RecordStore,
	cache ports.RecordCache,
	monitor *application.TimeoutMonitor,
	logger zerolog.Logger,
) *RevocationHandler {
	return &RevocationHandler{
		registry: registry,
		records:  records,
		cache:    cache,
		monitor:  monitor,
		logger:   logger,
	}
}

// CanHandle returns true if this handler can process the given event type.
func (h *RevocationHandler) CanHandle(eventType string) bool {
	return eventType == domain.EventAuthorizationRevoked
}

// Handle processes an authorization_revoked event. Revocation of an unknown
// connection is acknowledged without effect.
func (h *RevocationHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var data domain.AuthorizationRevokedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("failed to parse authorization_revoked payload: %w", err)
	}
	if data.ConnectionID == "" {
		return fmt.Errorf("authorization_revoked payload is missing org_connection_id")
	}

	conn, err := h.registry.Revoke(ctx, data.ConnectionID)
	if err != nil {
		return fmt.Errorf("failed to revoke connection: %w", err)
	}
	h.monitor.Stop(data.ConnectionID)

	if conn == nil {
		h.logger.Warn().
			Str("connectionId", data.ConnectionID).
			Msg("Revocation for unknown connection, nothing to do")
		return nil
	}

	if conn.UserID != "" {
		if err := h.records.RemoveForConnection(ctx, conn.UserID, conn.ID); err != nil {
			return fmt.Errorf("failed to remove records for revoked connection: %w", err)
		}
		if err := h.cache.Clear(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to invalidate record cache")
		}
	}

	h.logger.Info().
		Str("connectionId", conn.ID).
		Str("userId", conn.UserID).
		Msg("Connection revoked")
	return nil
}

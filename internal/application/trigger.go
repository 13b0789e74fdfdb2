package application

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// ExportTrigger issues export requests against the provider, enforcing at
// most one in-flight trigger per connection id. A concurrent trigger for a
// connection already being triggered is a no-op, which keeps rapid-fire or
// retried webhooks from requesting duplicate exports. The provider client
// owns the bounded retry and rate limiting of the call itself.
type ExportTrigger struct {
	provider ports.ProviderClient
	registry ports.ConnectionRegistry
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewExportTrigger creates a trigger service.
func NewExportTrigger(provider ports.ProviderClient, registry ports.ConnectionRegistry, m *metrics.Metrics, logger zerolog.Logger) *ExportTrigger {
	return &ExportTrigger{
		provider: provider,
		registry: registry,
		metrics:  m,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Trigger requests an export for the connection. Returns (nil, nil) when the
// request was skipped: another trigger is already in flight, or the provider
// is not configured. Exhausted retries mark the connection failed and return
// the error; the surrounding handler treats that as recorded, not fatal.
func (t *ExportTrigger) Trigger(ctx context.Context, connectionID string) (*domain.ExportTask, error) {
	t.mu.Lock()
	if _, busy := t.inflight[connectionID]; busy {
		t.mu.Unlock()
		t.logger.Debug().
			Str("connectionId", connectionID).
			Msg("Trigger already in flight for connection, skipping")
		return nil, nil
	}
	t.inflight[connectionID] = struct{}{}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.inflight, connectionID)
		t.mu.Unlock()
	}()

	if err := t.registry.MarkExportRequested(ctx, connectionID); err != nil {
		if errors.Is(err, domain.ErrConnectionRevoked) || errors.Is(err, domain.ErrConnectionNotFound) {
			t.logger.Warn().
				Err(err).
				Str("connectionId", connectionID).
				Msg("Refusing export trigger")
			return nil, err
		}
		return nil, err
	}

	t.metrics.TriggerAttempts.Inc()
	task, err := t.provider.RequestExport(ctx, connectionID)
	if errors.Is(err, ports.ErrProviderNotConfigured) {
		t.logger.Info().
			Str("connectionId", connectionID).
			Msg("Provider not configured, skipping automatic export")
		return nil, nil
	}
	if err != nil {
		t.metrics.TriggerFailures.Inc()
		if markErr := t.registry.MarkTriggerFailed(ctx, connectionID, err.Error()); markErr != nil {
			t.logger.Warn().Err(markErr).Str("connectionId", connectionID).Msg("Failed to record trigger failure")
		}
		t.logger.Error().
			Err(err).
			Str("connectionId", connectionID).
			Msg("Export trigger failed")
		return nil, err
	}

	if err := t.registry.MarkExportInProgress(ctx, connectionID, task.TaskID); err != nil {
		t.logger.Warn().Err(err).Str("connectionId", connectionID).Msg("Failed to record export task")
	}

	t.logger.Info().
		Str("connectionId", connectionID).
		Str("taskId", task.TaskID).
		Msg("Export triggered")
	return task, nil
}

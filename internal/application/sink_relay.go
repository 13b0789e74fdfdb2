package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// SinkRelay consumes ingest notices and pushes the freshly committed record
// batch to the downstream sink. Delivery is best-effort with a single retry;
// local records are always retained, so a failed push delays delivery
// without losing data.
type SinkRelay struct {
	sink       ports.Sink
	records    ports.RecordStore
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewSinkRelay creates a relay.
func NewSinkRelay(sink ports.Sink, records ports.RecordStore, m *metrics.Metrics, logger zerolog.Logger) *SinkRelay {
	return &SinkRelay{
		sink:       sink,
		records:    records,
		retryDelay: 2 * time.Second,
		metrics:    m,
		logger:     logger,
	}
}

// Run consumes notices until the channel closes or ctx is cancelled.
func (r *SinkRelay) Run(ctx context.Context, notices <-chan domain.IngestNotice) {
	for {
		select {
		case <-ctx.Done():
			return
		case notice, ok := <-notices:
			if !ok {
				return
			}
			r.deliver(ctx, notice)
		}
	}
}

func (r *SinkRelay) deliver(ctx context.Context, notice domain.IngestNotice) {
	all, err := r.records.RecordsForUser(ctx, notice.UserID)
	if err != nil {
		r.logger.Error().Err(err).Str("userId", notice.UserID).Msg("Failed to read records for sink push")
		return
	}

	batch := make([]domain.NormalizedRecord, 0, notice.Records)
	for _, record := range all {
		if record.ConnectionID == notice.ConnectionID && !record.IngestedAt.Before(notice.IngestedAt) {
			batch = append(batch, record)
		}
	}
	if len(batch) == 0 {
		return
	}

	if err := r.push(ctx, notice.UserID, batch); err != nil {
		r.metrics.SinkPushes.WithLabelValues("failed").Inc()
		r.logger.Error().
			Err(err).
			Str("userId", notice.UserID).
			Str("connectionId", notice.ConnectionID).
			Int("records", len(batch)).
			Msg("Sink push failed, records retained locally")
		return
	}
	r.metrics.SinkPushes.WithLabelValues("delivered").Inc()
}

// push attempts delivery with one best-effort retry.
func (r *SinkRelay) push(ctx context.Context, userID string, batch []domain.NormalizedRecord) error {
	err := r.sink.PushRecords(ctx, userID, batch)
	if err == nil {
		return nil
	}

	r.logger.Warn().Err(err).Str("userId", userID).Msg("Sink push failed, retrying once")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.retryDelay):
	}
	return r.sink.PushRecords(ctx, userID, batch)
}

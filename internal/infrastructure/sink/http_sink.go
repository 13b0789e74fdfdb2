package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// HTTPSink pushes record batches to the downstream platform as JSON. Each
// batch carries a content-derived idempotency key, so a retried push of the
// same batch cannot duplicate downstream state.
type HTTPSink struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

type batchEnvelope struct {
	BatchID string                    `json:"batch_id"`
	UserID  string                    `json:"user_id"`
	Records []domain.NormalizedRecord `json:"records"`
}

// NewHTTPSink creates a sink targeting the given endpoint.
func NewHTTPSink(url string, logger zerolog.Logger) *HTTPSink {
	return &HTTPSink{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// PushRecords posts one batch. Failure is returned to the caller; local
// records are never dropped on push failure.
func (s *HTTPSink) PushRecords(ctx context.Context, userID string, records []domain.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	payload, err := json.Marshal(batchEnvelope{
		UserID:  userID,
		Records: records,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record batch: %w", err)
	}

	// Deterministic batch id: the same records always produce the same key.
	batchID := uuid.NewSHA1(uuid.NameSpaceOID, payload).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", batchID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push record batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("sink returned status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.Info().
		Str("userId", userID).
		Str("batchId", batchID).
		Int("records", len(records)).
		Msg("Pushed record batch to sink")
	return nil
}

var _ ports.Sink = (*HTTPSink)(nil)

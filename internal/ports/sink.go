package ports

import (
	"context"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

// Sink is the downstream platform that consumes normalized records. Pushing
// is best-effort and idempotent per batch: local records are retained until
// an explicit clear, so a failed push never loses data.
type Sink interface {
	PushRecords(ctx context.Context, userID string, records []domain.NormalizedRecord) error
}

// IngestNotifier announces committed record batches. The transform pipeline
// publishes through this port; the sink relay consumes on the other side.
type IngestNotifier interface {
	NotifyIngest(notice domain.IngestNotice)
}

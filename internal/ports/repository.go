package ports

import (
	"context"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

// ConnectionRegistry is the authoritative state for connections, their
// current exports, and the user → connection index. Mutations to a single
// connection are serialized by the implementation; reads return copies.
type ConnectionRegistry interface {
	// UpsertOnConnectionSuccess creates or overwrites a connection in status
	// connected and associates it with the declared user, if any.
	UpsertOnConnectionSuccess(ctx context.Context, connectionID, userID, platformType string) (*domain.Connection, error)

	// MarkExportRequested advances a connection to export_requested. Returns
	// domain.ErrConnectionNotFound or domain.ErrConnectionRevoked when the
	// transition is not possible.
	MarkExportRequested(ctx context.Context, connectionID string) error

	// MarkExportInProgress records the provider task id and advances the
	// connection to export_in_progress.
	MarkExportInProgress(ctx context.Context, connectionID, taskID string) error

	// MarkTriggerFailed records an exhausted or rejected trigger attempt on
	// the connection without escalating.
	MarkTriggerFailed(ctx context.Context, connectionID, cause string) error

	// ApplyExportSuccess stores the export record and, when the connection
	// exists and is not revoked, updates its denormalized export-tracking
	// fields. Returns the updated connection, or nil when the connection is
	// unknown (the export record is still stored).
	ApplyExportSuccess(ctx context.Context, export *domain.Export) (*domain.Connection, error)

	// ApplyExportFailure is the failure counterpart of ApplyExportSuccess.
	ApplyExportFailure(ctx context.Context, connectionID, taskID, reason string) (*domain.Connection, error)

	// Revoke transitions the connection to its terminal state, detaches it
	// from the user index, and deletes its export record. Returns nil when
	// the connection is unknown. Idempotent.
	Revoke(ctx context.Context, connectionID string) (*domain.Connection, error)

	Get(ctx context.Context, connectionID string) (*domain.Connection, error)
	GetExport(ctx context.Context, connectionID string) (*domain.Export, error)
	AllForUser(ctx context.Context, userID string) ([]*domain.Connection, error)
	All(ctx context.Context) ([]*domain.Connection, error)
}

// EventStore is the idempotency ledger and raw-event archive.
type EventStore interface {
	// RecordIfNew atomically marks the event id as seen, returning true on
	// first observation. Events without an id are always treated as new.
	RecordIfNew(ctx context.Context, eventID string) (bool, error)

	// Archive appends the event to a bounded archive; oldest entries are
	// evicted first.
	Archive(ctx context.Context, event *domain.WebhookEvent) error

	// Recent returns up to n archived events, most recent first.
	Recent(ctx context.Context, n int) ([]*domain.WebhookEvent, error)
}

// RecordStore holds the per-user collections of normalized records.
type RecordStore interface {
	AppendRecords(ctx context.Context, userID string, records []domain.NormalizedRecord) error
	RecordsForUser(ctx context.Context, userID string) ([]domain.NormalizedRecord, error)
	AllRecords(ctx context.Context) ([]domain.NormalizedRecord, error)

	// RemoveForConnection detaches a revoked connection's records from the
	// user's collection.
	RemoveForConnection(ctx context.Context, userID, connectionID string) error

	Clear(ctx context.Context) error
}

// RecordCache is a short-TTL, best-effort memoization of expensive aggregate
// reads. Writers always mutate the record store directly, never the cache.
type RecordCache interface {
	// Get returns the cached value and true when present and fresher than
	// the TTL.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

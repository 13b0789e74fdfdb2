package repository

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

const lockShards = 16

// MemoryConnectionRegistry implements ports.ConnectionRegistry in process
// memory. Mutations for one connection are serialized through a sharded lock
// keyed by connection id, so a connection_success racing a stale retried
// export event cannot produce a lost update. Reads return copies.
type MemoryConnectionRegistry struct {
	mu          sync.RWMutex
	connections map[string]*domain.Connection
	exports     map[string]*domain.Export
	userIndex   map[string]map[string]struct{}
	shards      [lockShards]sync.Mutex
	logger      zerolog.Logger
}

// NewMemoryConnectionRegistry creates an empty registry.
func NewMemoryConnectionRegistry(logger zerolog.Logger) *MemoryConnectionRegistry {
	return &MemoryConnectionRegistry{
		connections: make(map[string]*domain.Connection),
		exports:     make(map[string]*domain.Export),
		userIndex:   make(map[string]map[string]struct{}),
		logger:      logger,
	}
}

func (r *MemoryConnectionRegistry) shardFor(connectionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(connectionID))
	return &r.shards[h.Sum32()%lockShards]
}

func cloneConnection(c *domain.Connection) *domain.Connection {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func cloneExport(e *domain.Export) *domain.Export {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// UpsertOnConnectionSuccess creates or overwrites a connection in status
// connected. A revoked connection stays revoked; the event is logged and the
// terminal copy is returned unchanged.
func (r *MemoryConnectionRegistry) UpsertOnConnectionSuccess(ctx context.Context, connectionID, userID, platformType string) (*domain.Connection, error) {
	shard := r.shardFor(connectionID)
	shard.Lock()
	defer shard.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[connectionID]; ok && existing.Revoked() {
		r.logger.Warn().
			Str("connectionId", connectionID).
			Msg("Ignoring connection_success for revoked connection")
		return cloneConnection(existing), nil
	}

	now := time.Now().UTC()
	conn := &domain.Connection{
		ID:           connectionID,
		UserID:       userID,
		PlatformType: platformType,
		Status:       domain.ConnectionConnected,
		ConnectedAt:  &now,
	}

	// Re-index if the connection moved to a different owner.
	if previous, ok := r.connections[connectionID]; ok && previous.UserID != "" && previous.UserID != userID {
		delete(r.userIndex[previous.UserID], connectionID)
	}
	if userID != "" {
		if r.userIndex[userID] == nil {
			r.userIndex[userID] = make(map[string]struct{})
		}
		r.userIndex[userID][connectionID] = struct{}{}
	}

	r.connections[connectionID] = conn
	return cloneConnection(conn), nil
}

func (r *MemoryConnectionRegistry) mutate(connectionID string, fn func(*domain.Connection)) error {
	shard := r.shardFor(connectionID)
	shard.Lock()
	defer shard.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	if conn.Revoked() {
		return domain.ErrConnectionRevoked
	}
	fn(conn)
	return nil
}

// MarkExportRequested advances the connection to export_requested.
func (r *MemoryConnectionRegistry) MarkExportRequested(ctx context.Context, connectionID string) error {
	return r.mutate(connectionID, func(conn *domain.Connection) {
		now := time.Now().UTC()
		conn.Status = domain.ConnectionExportRequested
		conn.LastExportRequestedAt = &now
	})
}

// MarkExportInProgress records the provider task id.
func (r *MemoryConnectionRegistry) MarkExportInProgress(ctx context.Context, connectionID, taskID string) error {
	return r.mutate(connectionID, func(conn *domain.Connection) {
		conn.Status = domain.ConnectionExportInProgress
		conn.PendingTaskID = taskID
	})
}

// MarkTriggerFailed records an exhausted trigger attempt.
func (r *MemoryConnectionRegistry) MarkTriggerFailed(ctx context.Context, connectionID, cause string) error {
	return r.mutate(connectionID, func(conn *domain.Connection) {
		now := time.Now().UTC()
		conn.Status = domain.ConnectionExportFailed
		conn.LastError = cause
		conn.LastExportFailureAt = &now
	})
}

// ApplyExportSuccess stores the export record and updates the connection
// projection when one exists. A success for an unknown connection id still
// creates the export record; it cannot update a projection that is not
// there, which is logged, not fatal.
func (r *MemoryConnectionRegistry) ApplyExportSuccess(ctx context.Context, export *domain.Export) (*domain.Connection, error) {
	shard := r.shardFor(export.ConnectionID)
	shard.Lock()
	defer shard.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[export.ConnectionID]
	if ok && conn.Revoked() {
		r.logger.Warn().
			Str("connectionId", export.ConnectionID).
			Msg("Dropping export_success for revoked connection")
		return cloneConnection(conn), nil
	}

	r.exports[export.ConnectionID] = cloneExport(export)

	if !ok {
		r.logger.Warn().
			Str("connectionId", export.ConnectionID).
			Msg("Export success for unknown connection, stored export record only")
		return nil, nil
	}

	now := time.Now().UTC()
	conn.Status = domain.ConnectionExportSucceeded
	conn.LastExportSuccessAt = &now
	conn.LastError = ""
	conn.PendingTaskID = ""
	return cloneConnection(conn), nil
}

// ApplyExportFailure is the failure counterpart of ApplyExportSuccess.
func (r *MemoryConnectionRegistry) ApplyExportFailure(ctx context.Context, connectionID, taskID, reason string) (*domain.Connection, error) {
	shard := r.shardFor(connectionID)
	shard.Lock()
	defer shard.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if ok && conn.Revoked() {
		r.logger.Warn().
			Str("connectionId", connectionID).
			Msg("Dropping export_failed for revoked connection")
		return cloneConnection(conn), nil
	}

	r.exports[connectionID] = &domain.Export{
		ConnectionID:  connectionID,
		Status:        domain.ExportFailed,
		TaskID:        taskID,
		FailureReason: reason,
		CreatedAt:     time.Now().UTC(),
	}

	if !ok {
		r.logger.Warn().
			Str("connectionId", connectionID).
			Msg("Export failure for unknown connection, stored export record only")
		return nil, nil
	}

	now := time.Now().UTC()
	conn.Status = domain.ConnectionExportFailed
	conn.LastError = reason
	conn.LastExportFailureAt = &now
	conn.PendingTaskID = ""
	return cloneConnection(conn), nil
}

// Revoke moves the connection to its terminal state, detaches it from the
// user index, and deletes its export record. Idempotent.
func (r *MemoryConnectionRegistry) Revoke(ctx context.Context, connectionID string) (*domain.Connection, error) {
	shard := r.shardFor(connectionID)
	shard.Lock()
	defer shard.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return nil, nil
	}
	if conn.Revoked() {
		return cloneConnection(conn), nil
	}

	now := time.Now().UTC()
	conn.Status = domain.ConnectionRevoked
	conn.RevokedAt = &now
	conn.PendingTaskID = ""

	delete(r.exports, connectionID)
	if conn.UserID != "" {
		delete(r.userIndex[conn.UserID], connectionID)
	}
	return cloneConnection(conn), nil
}

// Get returns a copy of the connection, or nil when unknown.
func (r *MemoryConnectionRegistry) Get(ctx context.Context, connectionID string) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneConnection(r.connections[connectionID]), nil
}

// GetExport returns a copy of the current export record, or nil.
func (r *MemoryConnectionRegistry) GetExport(ctx context.Context, connectionID string) (*domain.Export, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneExport(r.exports[connectionID]), nil
}

// AllForUser returns the user's connections, sorted by id.
func (r *MemoryConnectionRegistry) AllForUser(ctx context.Context, userID string) ([]*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.userIndex[userID]
	conns := make([]*domain.Connection, 0, len(ids))
	for id := range ids {
		if conn, ok := r.connections[id]; ok {
			conns = append(conns, cloneConnection(conn))
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns, nil
}

// All returns every connection, sorted by id.
func (r *MemoryConnectionRegistry) All(ctx context.Context) ([]*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*domain.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, cloneConnection(conn))
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns, nil
}

var _ ports.ConnectionRegistry = (*MemoryConnectionRegistry)(nil)

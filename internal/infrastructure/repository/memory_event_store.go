package repository

import (
	"context"
	"sync"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

const defaultArchiveCapacity = 500

// MemoryEventStore implements ports.EventStore in process memory. The
// id-seen set grows without bound; durable deployments expire old ids
// (see MongoEventStore).
type MemoryEventStore struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	archive  []*domain.WebhookEvent
	capacity int
}

// NewMemoryEventStore creates a store whose archive keeps at most capacity
// events, oldest evicted first.
func NewMemoryEventStore(capacity int) *MemoryEventStore {
	if capacity <= 0 {
		capacity = defaultArchiveCapacity
	}
	return &MemoryEventStore{
		seen:     make(map[string]struct{}),
		capacity: capacity,
	}
}

// RecordIfNew atomically marks the id as seen, returning true on first
// observation. Events without an id cannot be deduplicated and are always
// treated as new.
func (s *MemoryEventStore) RecordIfNew(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[eventID]; dup {
		return false, nil
	}
	s.seen[eventID] = struct{}{}
	return true, nil
}

// Archive appends the event, evicting the oldest entry once full.
func (s *MemoryEventStore) Archive(ctx context.Context, event *domain.WebhookEvent) error {
	cp := *event

	s.mu.Lock()
	defer s.mu.Unlock()

	s.archive = append(s.archive, &cp)
	if len(s.archive) > s.capacity {
		s.archive = append(s.archive[:0:0], s.archive[len(s.archive)-s.capacity:]...)
	}
	return nil
}

// Recent returns up to n archived events, most recent first.
func (s *MemoryEventStore) Recent(ctx context.Context, n int) ([]*domain.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.archive) {
		n = len(s.archive)
	}

	out := make([]*domain.WebhookEvent, 0, n)
	for i := len(s.archive) - 1; i >= len(s.archive)-n; i-- {
		cp := *s.archive[i]
		out = append(out, &cp)
	}
	return out, nil
}

var _ ports.EventStore = (*MemoryEventStore)(nil)

package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// MemoryRecordStore implements ports.RecordStore in process memory. Records
// are append-only per user; removal happens only through RemoveForConnection
// (revocation) or Clear.
type MemoryRecordStore struct {
	mu     sync.RWMutex
	byUser map[string][]domain.NormalizedRecord
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{byUser: make(map[string][]domain.NormalizedRecord)}
}

// AppendRecords appends a committed batch to the user's collection.
func (s *MemoryRecordStore) AppendRecords(ctx context.Context, userID string, records []domain.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = append(s.byUser[userID], records...)
	return nil
}

// RecordsForUser returns a copy of the user's ordered record collection.
func (s *MemoryRecordStore) RecordsForUser(ctx context.Context, userID string) ([]domain.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byUser[userID]
	out := make([]domain.NormalizedRecord, len(records))
	copy(out, records)
	return out, nil
}

// AllRecords returns every record, grouped by user id for determinism.
func (s *MemoryRecordStore) AllRecords(ctx context.Context) ([]domain.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.byUser))
	for userID := range s.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)

	var out []domain.NormalizedRecord
	for _, userID := range users {
		out = append(out, s.byUser[userID]...)
	}
	return out, nil
}

// RemoveForConnection drops the records a revoked connection contributed to
// the user's collection.
func (s *MemoryRecordStore) RemoveForConnection(ctx context.Context, userID, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.byUser[userID]
	kept := records[:0]
	for _, record := range records {
		if record.ConnectionID != connectionID {
			kept = append(kept, record)
		}
	}
	if len(kept) == 0 {
		delete(s.byUser, userID)
	} else {
		s.byUser[userID] = kept
	}
	return nil
}

// Clear removes every record.
func (s *MemoryRecordStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser = make(map[string][]domain.NormalizedRecord)
	return nil
}

var _ ports.RecordStore = (*MemoryRecordStore)(nil)

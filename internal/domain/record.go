package domain

import (
	"encoding/json"
	"time"
)

// NormalizedRecord is one parsed unit of exported clinical data enriched
// with ownership and provenance metadata. The original resource payload is
// preserved unmodified; records are append-only and removed only by an
// explicit clear or by revoking their connection.
type NormalizedRecord struct {
	UserID       string          `json:"user_id"`
	ConnectionID string          `json:"connection_id"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	IngestedAt   time.Time       `json:"ingested_at"`
	Resource     json.RawMessage `json:"resource"`
	Source       string          `json:"source,omitempty"`
}

// IngestNotice announces that a batch of records has been committed for a
// user. It carries no record data; consumers read from the record store.
type IngestNotice struct {
	UserID       string    `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	Records      int       `json:"records"`
	IngestedAt   time.Time `json:"ingested_at"`
}

package domain

import "time"

// ExportStatus is the state of the current bulk-export job for a connection.
type ExportStatus string

const (
	ExportRequested  ExportStatus = "requested"
	ExportInProgress ExportStatus = "in_progress"
	ExportSucceeded  ExportStatus = "succeeded"
	ExportFailed     ExportStatus = "failed"
)

// ExportStats summarizes a completed bulk export as reported by the provider.
type ExportStats struct {
	ResourceCount int   `json:"resource_count,omitempty"`
	SizeBytes     int64 `json:"size_bytes,omitempty"`
}

// Export is the current bulk data-extraction job for a connection. There is
// at most one per connection; the next terminal event for the same connection
// overwrites it, and revoking the connection deletes it.
type Export struct {
	ConnectionID  string       `json:"connection_id"`
	Status        ExportStatus `json:"status"`
	DownloadLink  string       `json:"download_link,omitempty"`
	Stats         ExportStats  `json:"stats,omitempty"`
	TaskID        string       `json:"task_id,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
}

// ExportTask is the provider's acknowledgment for a requested export.
type ExportTask struct {
	Status string `json:"status"`
	TaskID string `json:"task_id"`
}

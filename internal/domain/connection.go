package domain

import "time"

// ConnectionStatus is the lifecycle state of a provider data connection.
type ConnectionStatus string

const (
	ConnectionPending          ConnectionStatus = "pending"
	ConnectionConnected        ConnectionStatus = "connected"
	ConnectionExportRequested  ConnectionStatus = "export_requested"
	ConnectionExportInProgress ConnectionStatus = "export_in_progress"
	ConnectionExportSucceeded  ConnectionStatus = "export_succeeded"
	ConnectionExportFailed     ConnectionStatus = "export_failed"
	ConnectionRevoked          ConnectionStatus = "revoked"
)

// Connection represents one provider-side authorization linking an end user
// to a source-system data feed. A Connection is owned by the registry and is
// mutated only through the event dispatcher's handlers; `revoked` is terminal
// and accepts no further export-state mutation.
type Connection struct {
	ID                    string           `json:"id"`
	UserID                string           `json:"user_id,omitempty"`
	PlatformType          string           `json:"platform_type,omitempty"`
	Status                ConnectionStatus `json:"status"`
	ConnectedAt           *time.Time       `json:"connected_at,omitempty"`
	LastExportRequestedAt *time.Time       `json:"last_export_requested_at,omitempty"`
	LastExportSuccessAt   *time.Time       `json:"last_export_success_at,omitempty"`
	LastExportFailureAt   *time.Time       `json:"last_export_failure_at,omitempty"`
	RevokedAt             *time.Time       `json:"revoked_at,omitempty"`
	LastError             string           `json:"last_error,omitempty"`
	PendingTaskID         string           `json:"pending_task_id,omitempty"`
}

// Revoked reports whether the connection has reached its terminal state.
func (c *Connection) Revoked() bool {
	return c.Status == ConnectionRevoked
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event types emitted by the provider. Unrecognized types are
// acknowledged and ignored so that a new provider event class never turns
// into a poison-pill retry loop.
const (
	EventConnectionSuccess    = "connection_success"
	EventExportSuccess        = "export_success"
	EventExportFailed         = "export_failed"
	EventAuthorizationRevoked = "authorization_revoked"
	EventTest                 = "test"
)

// EventOutcome records how processing of a webhook event ended.
type EventOutcome string

const (
	OutcomeSucceeded EventOutcome = "succeeded"
	OutcomeErrored   EventOutcome = "errored"
)

// WebhookEvent is one inbound signal from the provider. The raw payload is
// kept verbatim; the only mutation after arrival is recording the outcome.
// The ID, when present, doubles as the idempotency key.
type WebhookEvent struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	APIMode    string          `json:"api_mode,omitempty"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"received_at"`
	Outcome    EventOutcome    `json:"outcome,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ParseWebhookEvent decodes an inbound webhook body and stamps the arrival
// time. The payload shape is validated here at the boundary; the typed data
// for each event class is decoded by its handler.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("webhook event is missing a type")
	}
	event.ReceivedAt = time.Now().UTC()
	return &event, nil
}

// ConnectionSuccessData is the payload of a connection_success event.
type ConnectionSuccessData struct {
	ConnectionID string `json:"org_connection_id"`
	UserID       string `json:"external_id,omitempty"`
	PlatformType string `json:"platform_type,omitempty"`
}

// ExportSuccessData is the payload of an export_success event.
type ExportSuccessData struct {
	ConnectionID string      `json:"org_connection_id"`
	UserID       string      `json:"external_id,omitempty"`
	TaskID       string      `json:"task_id,omitempty"`
	DownloadLink string      `json:"download_link"`
	Stats        ExportStats `json:"stats,omitempty"`
	ExpiresAt    *time.Time  `json:"download_expires,omitempty"`
}

// ExportFailedData is the payload of an export_failed event.
type ExportFailedData struct {
	ConnectionID  string `json:"org_connection_id"`
	TaskID        string `json:"task_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// AuthorizationRevokedData is the payload of an authorization_revoked event.
type AuthorizationRevokedData struct {
	ConnectionID string `json:"org_connection_id"`
}

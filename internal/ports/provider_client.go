package ports

import (
	"context"
	"errors"
	"io"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

// ErrProviderNotConfigured signals that the provider credential pair is
// absent. Callers skip the dependent action (e.g. automatic export
// triggering) instead of failing.
var ErrProviderNotConfigured = errors.New("provider credentials not configured")

// ProviderClient defines the operations the service performs against the
// provider API.
type ProviderClient interface {
	// RequestExport asks the provider to start a bulk export for the
	// connection and returns the provider's task acknowledgment.
	RequestExport(ctx context.Context, connectionID string) (*domain.ExportTask, error)

	// ConnectionStatus is a read-only probe of the provider-side state of a
	// connection, used for timeout diagnostics.
	ConnectionStatus(ctx context.Context, connectionID string) (string, error)
}

// Downloader fetches a bulk-export payload by its opaque download reference.
// The returned stream is newline-delimited JSON resources.
type Downloader interface {
	Download(ctx context.Context, downloadRef string) (io.ReadCloser, error)
}

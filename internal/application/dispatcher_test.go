package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/metrics"
	"github.com/gsiegel14/fasten-webhook-service/internal/infrastructure/repository"
)

type stubHandler struct {
	eventType string
	calls     int
	err       error
	panics    bool
}

func (h *stubHandler) CanHandle(eventType string) bool { return eventType == h.eventType }

func (h *stubHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	h.calls++
	if h.panics {
		panic("handler exploded")
	}
	return h.err
}

func newTestDispatcher() (*EventDispatcher, *repository.MemoryEventStore) {
	store := repository.NewMemoryEventStore(0)
	return NewEventDispatcher(store, metrics.NewNop(), zerolog.Nop()), store
}

func testEvent(id, eventType string) *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:   id,
		Type: eventType,
		Data: json.RawMessage(`{}`),
	}
}

func TestEventDispatcher_RoutesToHandler(t *testing.T) {
	dispatcher, store := newTestDispatcher()
	handler := &stubHandler{eventType: domain.EventTest}
	other := &stubHandler{eventType: domain.EventExportSuccess}
	dispatcher.RegisterHandler(handler)
	dispatcher.RegisterHandler(other)

	err := dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest))
	require.NoError(t, err)
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, 0, other.calls)

	archived, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, domain.OutcomeSucceeded, archived[0].Outcome)
}

func TestEventDispatcher_DuplicateAcknowledgedWithoutProcessing(t *testing.T) {
	dispatcher, store := newTestDispatcher()
	handler := &stubHandler{eventType: domain.EventTest}
	dispatcher.RegisterHandler(handler)

	require.NoError(t, dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest)))
	require.NoError(t, dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest)))

	assert.Equal(t, 1, handler.calls, "duplicate must not reach the handler")

	archived, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, archived, 1, "duplicate must not be archived twice")
}

func TestEventDispatcher_EventsWithoutIDAlwaysProcessed(t *testing.T) {
	dispatcher, _ := newTestDispatcher()
	handler := &stubHandler{eventType: domain.EventTest}
	dispatcher.RegisterHandler(handler)

	require.NoError(t, dispatcher.Dispatch(context.Background(), testEvent("", domain.EventTest)))
	require.NoError(t, dispatcher.Dispatch(context.Background(), testEvent("", domain.EventTest)))

	assert.Equal(t, 2, handler.calls)
}

func TestEventDispatcher_UnknownTypeAcknowledged(t *testing.T) {
	dispatcher, store := newTestDispatcher()
	dispatcher.RegisterHandler(&stubHandler{eventType: domain.EventTest})

	err := dispatcher.Dispatch(context.Background(), testEvent("evt-1", "provider.future_event"))
	require.NoError(t, err)

	archived, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, domain.OutcomeSucceeded, archived[0].Outcome)
}

func TestEventDispatcher_HandlerErrorStillAcknowledged(t *testing.T) {
	dispatcher, store := newTestDispatcher()
	dispatcher.RegisterHandler(&stubHandler{eventType: domain.EventTest, err: errors.New("downstream broke")})

	err := dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest))
	require.NoError(t, err, "handler failure must not fail the acknowledgment")

	archived, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, domain.OutcomeErrored, archived[0].Outcome)
	assert.Contains(t, archived[0].Error, "downstream broke")
}

func TestEventDispatcher_HandlerPanicRecovered(t *testing.T) {
	dispatcher, store := newTestDispatcher()
	dispatcher.RegisterHandler(&stubHandler{eventType: domain.EventTest, panics: true})

	err := dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest))
	require.NoError(t, err)

	archived, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, domain.OutcomeErrored, archived[0].Outcome)
	assert.Contains(t, archived[0].Error, "handler panic")
}

func TestEventDispatcher_FailedEventIDStaysConsumed(t *testing.T) {
	dispatcher, _ := newTestDispatcher()
	handler := &stubHandler{eventType: domain.EventTest, err: errors.New("transient")}
	dispatcher.RegisterHandler(handler)

	require.NoError(t, dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest)))

	// A provider retry of the same id is deduplicated even though the first
	// processing errored; the outcome is recorded, not retried.
	require.NoError(t, dispatcher.Dispatch(context.Background(), testEvent("evt-1", domain.EventTest)))
	assert.Equal(t, 1, handler.calls)
}

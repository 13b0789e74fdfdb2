package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

func TestMemoryEventStore_RecordIfNew(t *testing.T) {
	store := NewMemoryEventStore(0)
	ctx := context.Background()

	fresh, err := store.RecordIfNew(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.RecordIfNew(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = store.RecordIfNew(ctx, "evt-2")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestMemoryEventStore_RecordIfNew_EmptyID(t *testing.T) {
	store := NewMemoryEventStore(0)
	ctx := context.Background()

	// Events without an id cannot be deduplicated.
	for i := 0; i < 3; i++ {
		fresh, err := store.RecordIfNew(ctx, "")
		require.NoError(t, err)
		assert.True(t, fresh)
	}
}

func TestMemoryEventStore_RecordIfNew_Concurrent(t *testing.T) {
	store := NewMemoryEventStore(0)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := store.RecordIfNew(ctx, "same-event")
			require.NoError(t, err)
			results <- fresh
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for fresh := range results {
		if fresh {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent caller should observe the id as new")
}

func TestMemoryEventStore_Archive_EvictsOldest(t *testing.T) {
	store := NewMemoryEventStore(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := store.Archive(ctx, &domain.WebhookEvent{
			ID:   fmt.Sprintf("evt-%d", i),
			Type: domain.EventTest,
		})
		require.NoError(t, err)
	}

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Most recent first; evt-1 and evt-2 were evicted.
	assert.Equal(t, "evt-5", events[0].ID)
	assert.Equal(t, "evt-4", events[1].ID)
	assert.Equal(t, "evt-3", events[2].ID)
}

func TestMemoryEventStore_Recent_ReturnsCopies(t *testing.T) {
	store := NewMemoryEventStore(0)
	ctx := context.Background()

	require.NoError(t, store.Archive(ctx, &domain.WebhookEvent{ID: "evt-1", Type: domain.EventTest}))

	events, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events[0].ID = "mutated"

	again, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", again[0].ID)
}

func TestMemoryEventStore_Recent_Limit(t *testing.T) {
	store := NewMemoryEventStore(0)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, store.Archive(ctx, &domain.WebhookEvent{ID: fmt.Sprintf("evt-%d", i)}))
	}

	events, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-4", events[0].ID)
	assert.Equal(t, "evt-3", events[1].ID)
}

package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

func TestIngestPubSub_PublishReachesSubscriber(t *testing.T) {
	ps := NewIngestPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := ps.Subscribe(ctx, nil)
	ps.Publish(domain.IngestNotice{UserID: "user-1", ConnectionID: "conn-1", Records: 3})

	select {
	case notice := <-sub.Notices:
		assert.Equal(t, "user-1", notice.UserID)
		assert.Equal(t, 3, notice.Records)
	case <-time.After(time.Second):
		t.Fatal("expected a notice")
	}
}

func TestIngestPubSub_FilterByUser(t *testing.T) {
	ps := NewIngestPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := ps.Subscribe(ctx, &IngestFilter{UserID: "user-1"})

	ps.Publish(domain.IngestNotice{UserID: "user-2", ConnectionID: "conn-1"})
	ps.Publish(domain.IngestNotice{UserID: "user-1", ConnectionID: "conn-2"})

	select {
	case notice := <-sub.Notices:
		assert.Equal(t, "user-1", notice.UserID)
		assert.Equal(t, "conn-2", notice.ConnectionID)
	case <-time.After(time.Second):
		t.Fatal("expected the filtered notice")
	}
	assert.Empty(t, sub.Notices)
}

func TestIngestPubSub_FilterByConnection(t *testing.T) {
	ps := NewIngestPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := ps.Subscribe(ctx, &IngestFilter{ConnectionID: "conn-1"})

	ps.Publish(domain.IngestNotice{UserID: "user-1", ConnectionID: "conn-9"})
	ps.Publish(domain.IngestNotice{UserID: "user-1", ConnectionID: "conn-1"})

	select {
	case notice := <-sub.Notices:
		assert.Equal(t, "conn-1", notice.ConnectionID)
	case <-time.After(time.Second):
		t.Fatal("expected the filtered notice")
	}
}

func TestIngestPubSub_PublishNeverBlocks(t *testing.T) {
	ps := NewIngestPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ps.Subscribe(ctx, nil)

	// More notices than the buffer holds; publishing must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			ps.Publish(domain.IngestNotice{UserID: "user-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestIngestPubSub_UnsubscribeOnContextCancel(t *testing.T) {
	ps := NewIngestPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	sub := ps.Subscribe(ctx, nil)
	require.Equal(t, 1, ps.Stats()["active_subscriptions"])

	cancel()

	// The cleanup goroutine removes the subscription and closes the channel.
	require.Eventually(t, func() bool {
		return ps.Stats()["active_subscriptions"] == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-sub.Notices
	assert.False(t, open)
}

func TestIngestPubSub_Unsubscribe_UnknownID(t *testing.T) {
	ps := NewIngestPubSub(zerolog.Nop())
	ps.Unsubscribe("sub-404")
	assert.Equal(t, 0, ps.Stats()["active_subscriptions"])
}

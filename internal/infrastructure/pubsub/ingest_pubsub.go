package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// IngestSubscription is one subscriber's channel of ingest notices.
type IngestSubscription struct {
	ID      string
	Filter  *IngestFilter
	Notices chan domain.IngestNotice
	ctx     context.Context
	cancel  context.CancelFunc
}

// IngestFilter narrows a subscription to one user and/or connection.
type IngestFilter struct {
	UserID       string
	ConnectionID string
}

// IngestPubSub broadcasts ingest notices to subscribers. Publishing never
// blocks; a subscriber that cannot keep up loses notices (consumers read the
// record store, so a dropped notice delays delivery, it does not lose data).
type IngestPubSub struct {
	mu     sync.RWMutex
	subs   map[string]*IngestSubscription
	logger zerolog.Logger
	nextID int64
}

// NewIngestPubSub creates an empty pub/sub.
func NewIngestPubSub(logger zerolog.Logger) *IngestPubSub {
	return &IngestPubSub{
		subs:   make(map[string]*IngestSubscription),
		logger: logger,
	}
}

// Subscribe creates a subscription that lives until ctx is cancelled.
func (ps *IngestPubSub) Subscribe(ctx context.Context, filter *IngestFilter) *IngestSubscription {
	subCtx, cancel := context.WithCancel(ctx)

	ps.mu.Lock()
	ps.nextID++
	sub := &IngestSubscription{
		ID:      fmt.Sprintf("sub-%d", ps.nextID),
		Filter:  filter,
		Notices: make(chan domain.IngestNotice, 16),
		ctx:     subCtx,
		cancel:  cancel,
	}
	ps.subs[sub.ID] = sub
	ps.mu.Unlock()

	ps.logger.Info().
		Str("subscriptionId", sub.ID).
		Msg("Ingest subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(sub.ID)
	}()

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (ps *IngestPubSub) Unsubscribe(subscriptionID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	sub, ok := ps.subs[subscriptionID]
	if !ok {
		return
	}
	close(sub.Notices)
	sub.cancel()
	delete(ps.subs, subscriptionID)

	ps.logger.Info().
		Str("subscriptionId", subscriptionID).
		Msg("Ingest subscription removed")
}

// NotifyIngest implements ports.IngestNotifier.
func (ps *IngestPubSub) NotifyIngest(notice domain.IngestNotice) {
	ps.Publish(notice)
}

// Publish broadcasts the notice to every matching subscriber.
func (ps *IngestPubSub) Publish(notice domain.IngestNotice) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, sub := range ps.subs {
		if !matchesFilter(notice, sub.Filter) {
			continue
		}
		select {
		case sub.Notices <- notice:
		case <-sub.ctx.Done():
		default:
			ps.logger.Warn().
				Str("subscriptionId", sub.ID).
				Msg("Subscriber buffer full, dropping ingest notice")
		}
	}
}

func matchesFilter(notice domain.IngestNotice, filter *IngestFilter) bool {
	if filter == nil {
		return true
	}
	if filter.UserID != "" && notice.UserID != filter.UserID {
		return false
	}
	if filter.ConnectionID != "" && notice.ConnectionID != filter.ConnectionID {
		return false
	}
	return true
}

// Stats reports the number of live subscriptions.
func (ps *IngestPubSub) Stats() map[string]interface{} {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return map[string]interface{}{
		"active_subscriptions": len(ps.subs),
	}
}

var _ ports.IngestNotifier = (*IngestPubSub)(nil)

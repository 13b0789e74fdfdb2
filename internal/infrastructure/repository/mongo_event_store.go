package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
	"github.com/gsiegel14/fasten-webhook-service/internal/ports"
)

// MongoEventStore implements ports.EventStore on MongoDB: the seen-id ledger
// is a collection keyed by event id (the _id unique index makes the
// check-and-mark atomic), and the archive is a capped-by-TTL collection of
// raw events.
type MongoEventStore struct {
	seenIDs *mongo.Collection
	archive *mongo.Collection
}

type seenIDDoc struct {
	ID     string    `bson:"_id"`
	SeenAt time.Time `bson:"seen_at"`
}

type webhookEventDoc struct {
	EventID    string    `bson:"event_id,omitempty"`
	Type       string    `bson:"type"`
	APIMode    string    `bson:"api_mode,omitempty"`
	Data       string    `bson:"data,omitempty"`
	ReceivedAt time.Time `bson:"received_at"`
	Outcome    string    `bson:"outcome,omitempty"`
	Error      string    `bson:"error,omitempty"`
}

// NewMongoEventStore creates the store and its expiry index. Seen ids are
// expired after ttl so the ledger does not grow without bound.
func NewMongoEventStore(ctx context.Context, db *mongo.Database, ttl time.Duration) (*MongoEventStore, error) {
	store := &MongoEventStore{
		seenIDs: db.Collection("webhook_event_ids"),
		archive: db.Collection("webhook_events"),
	}

	if ttl > 0 {
		_, err := store.seenIDs.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "seen_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create seen-id expiry index: %w", err)
		}
	}
	return store, nil
}

// RecordIfNew inserts the id; a duplicate-key error means it was seen.
func (s *MongoEventStore) RecordIfNew(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return true, nil
	}

	_, err := s.seenIDs.InsertOne(ctx, seenIDDoc{ID: eventID, SeenAt: time.Now().UTC()})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record event id: %w", err)
	}
	return true, nil
}

// Archive inserts the event into the archive collection.
func (s *MongoEventStore) Archive(ctx context.Context, event *domain.WebhookEvent) error {
	doc := webhookEventDoc{
		EventID:    event.ID,
		Type:       event.Type,
		APIMode:    event.APIMode,
		Data:       string(event.Data),
		ReceivedAt: event.ReceivedAt,
		Outcome:    string(event.Outcome),
		Error:      event.Error,
	}
	if _, err := s.archive.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive webhook event: %w", err)
	}
	return nil
}

// Recent returns up to n archived events, most recent first.
func (s *MongoEventStore) Recent(ctx context.Context, n int) ([]*domain.WebhookEvent, error) {
	if n <= 0 {
		n = defaultArchiveCapacity
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: -1}}).
		SetLimit(int64(n))
	cursor, err := s.archive.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*domain.WebhookEvent
	for cursor.Next(ctx) {
		var doc webhookEventDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode archived event: %w", err)
		}
		events = append(events, &domain.WebhookEvent{
			ID:         doc.EventID,
			Type:       doc.Type,
			APIMode:    doc.APIMode,
			Data:       json.RawMessage(doc.Data),
			ReceivedAt: doc.ReceivedAt,
			Outcome:    domain.EventOutcome(doc.Outcome),
			Error:      doc.Error,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return events, nil
}

var _ ports.EventStore = (*MongoEventStore)(nil)

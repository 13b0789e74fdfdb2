package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsiegel14/fasten-webhook-service/internal/domain"
)

func TestMemoryRecordStore_AppendAndRead(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()

	err := store.AppendRecords(ctx, "user-1", []domain.NormalizedRecord{
		{UserID: "user-1", ConnectionID: "conn-1", ResourceType: "Patient", ResourceID: "p1"},
		{UserID: "user-1", ConnectionID: "conn-1", ResourceType: "Observation", ResourceID: "o1"},
	})
	require.NoError(t, err)

	records, err := store.RecordsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Patient", records[0].ResourceType)
	assert.Equal(t, "Observation", records[1].ResourceType)

	none, err := store.RecordsForUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRecordStore_RemoveForConnection(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()

	require.NoError(t, store.AppendRecords(ctx, "user-1", []domain.NormalizedRecord{
		{UserID: "user-1", ConnectionID: "conn-1", ResourceType: "Patient"},
		{UserID: "user-1", ConnectionID: "conn-2", ResourceType: "Observation"},
		{UserID: "user-1", ConnectionID: "conn-1", ResourceType: "Condition"},
	}))

	require.NoError(t, store.RemoveForConnection(ctx, "user-1", "conn-1"))

	records, err := store.RecordsForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "conn-2", records[0].ConnectionID)
}

func TestMemoryRecordStore_AllRecords_GroupedByUser(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()

	require.NoError(t, store.AppendRecords(ctx, "user-b", []domain.NormalizedRecord{
		{UserID: "user-b", ConnectionID: "conn-1", ResourceType: "Patient"},
	}))
	require.NoError(t, store.AppendRecords(ctx, "user-a", []domain.NormalizedRecord{
		{UserID: "user-a", ConnectionID: "conn-2", ResourceType: "Patient"},
	}))

	all, err := store.AllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "user-a", all[0].UserID)
	assert.Equal(t, "user-b", all[1].UserID)
}

func TestMemoryRecordStore_Clear(t *testing.T) {
	store := NewMemoryRecordStore()
	ctx := context.Background()

	require.NoError(t, store.AppendRecords(ctx, "user-1", []domain.NormalizedRecord{
		{UserID: "user-1", ConnectionID: "conn-1", ResourceType: "Patient"},
	}))
	require.NoError(t, store.Clear(ctx))

	all, err := store.AllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "conv-1", sampleRecord()))

	loaded, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", loaded.Session.ConversationID)
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDoesNotShareState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := sampleRecord()
	require.NoError(t, store.Save(ctx, "conv-1", rec))

	// Mutating the saved record must not leak into the store.
	rec.Messages[0].Content = "mutated"

	loaded, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", loaded.Messages[0].Content)

	// Nor does mutating a loaded copy affect subsequent loads.
	loaded.Messages[0].Content = "mutated again"
	reloaded, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !", reloaded.Messages[0].Content)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "conv-1", sampleRecord()))
	require.NoError(t, store.Delete(ctx, "conv-1"))

	_, err := store.Load(ctx, "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

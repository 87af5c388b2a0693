package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_QueryOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)

	err := store.AddChunks(ctx, []DocumentChunk{
		{ID: "a", Content: "east", Metadata: Metadata{Source: "a.md"}, Embedding: []float32{1, 0}},
		{ID: "b", Content: "north", Metadata: Metadata{Source: "b.md"}, Embedding: []float32{0, 1}},
		{ID: "c", Content: "north-east", Metadata: Metadata{Source: "c.md"}, Embedding: []float32{1, 1}},
	})
	require.NoError(t, err)

	results, err := store.Query(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Equal(t, results[0].Score, results[0].Similarity)
	assert.Greater(t, results[0].Score, results[1].Score)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryStore_RejectsWrongDimension(t *testing.T) {
	store := NewMemoryStore(3)
	err := store.AddChunks(context.Background(), []DocumentChunk{{ID: "x", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_ClearAndScroll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	require.NoError(t, store.AddChunks(ctx, []DocumentChunk{
		{ID: "1", Content: "one", Embedding: []float32{1}},
		{ID: "2", Content: "two", Embedding: []float32{2}},
	}))

	var seen []string
	require.NoError(t, store.ScrollChunks(ctx, func(c DocumentChunk) error {
		assert.Nil(t, c.Embedding)
		seen = append(seen, c.ID)
		return nil
	}))
	assert.Equal(t, []string{"1", "2"}, seen)

	stop := errors.New("stop")
	err := store.ScrollChunks(ctx, func(DocumentChunk) error { return stop })
	assert.ErrorIs(t, err, stop)

	require.NoError(t, store.Clear(ctx))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

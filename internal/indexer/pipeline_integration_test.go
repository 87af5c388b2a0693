//go:build integration

package indexer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-assistant/internal/loader"
	"github.com/bull/rag-assistant/internal/markdown"
	"github.com/bull/rag-assistant/internal/retrieval"
	"github.com/bull/rag-assistant/internal/storage"
	"github.com/bull/rag-assistant/internal/testutil"
)

func TestPipeline_QdrantRestore_Integration(t *testing.T) {
	ctx := context.Background()
	collection := "test-" + uuid.NewString()

	store, err := storage.NewQdrantStorage(storage.QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: collection,
		Dimension:  64,
	})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	require.NoError(t, store.EnsureCollection(ctx))
	t.Cleanup(func() {
		_ = store.Client().DeleteCollection(context.Background(), collection)
		store.Close()
	})

	emb := testutil.NewEmbedder(64)
	chunker := markdown.NewChunker(markdown.DefaultConfig())
	fx := &fixture{dir: t.TempDir()}
	path := fx.write(t, "checkin.md", checkinDoc)

	first := NewPipeline(loader.NewFileLoader(), chunker, emb, store, nil)
	res := first.IndexDocument(ctx, path)
	require.True(t, res.Success, res.ErrorMessage)

	// Simulate a restart: new retriever and pipeline over the persisted collection.
	retriever := retrieval.NewHybridRetriever(emb, store, retrieval.DefaultOptions(), nil)
	restarted := NewPipeline(loader.NewFileLoader(), chunker, emb, store, nil, WithKeywordIndex(retriever))
	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, res.ChunksCreated, retriever.KeywordIndexCount())

	results, err := retriever.Retrieve(ctx, "parking lot", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "checkin.md", results[0].Metadata.Source)
	assert.Equal(t, "Parking", results[0].Metadata.Section)
}

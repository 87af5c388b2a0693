package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-assistant/internal/cache"
	"github.com/bull/rag-assistant/internal/loader"
	"github.com/bull/rag-assistant/internal/markdown"
	"github.com/bull/rag-assistant/internal/metadata"
	"github.com/bull/rag-assistant/internal/retrieval"
	"github.com/bull/rag-assistant/internal/storage"
	"github.com/bull/rag-assistant/internal/testutil"
)

type fixture struct {
	pipeline  *Pipeline
	store     *storage.MemoryStore
	retriever *retrieval.HybridRetriever
	cache     *cache.SemanticCache
	embedder  *testutil.Embedder
	dir       string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	emb := testutil.NewEmbedder(64)
	store := storage.NewMemoryStore(64)
	retriever := retrieval.NewHybridRetriever(emb, store, retrieval.DefaultOptions(), nil)
	c := cache.New(emb, cache.NewMemoryStore(), cache.DefaultOptions(), nil)

	opts = append([]Option{WithKeywordIndex(retriever), WithCache(c)}, opts...)
	p := NewPipeline(loader.NewFileLoader(), markdown.NewChunker(markdown.DefaultConfig()), emb, store, nil, opts...)
	return &fixture{pipeline: p, store: store, retriever: retriever, cache: c, embedder: emb, dir: t.TempDir()}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const checkinDoc = `# Check-in

Volunteers check in at the front desk before each shift.

## Parking

Park in lot B behind the building.
`

func TestPipeline_IndexDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	path := f.write(t, "checkin.md", checkinDoc)

	res := f.pipeline.IndexDocument(ctx, path)
	require.True(t, res.Success, res.ErrorMessage)
	assert.Equal(t, "checkin.md", res.Source)
	assert.Equal(t, 2, res.ChunksCreated)
	assert.Equal(t, 1, f.embedder.BatchCalls(), "chunks are embedded in one batch")

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.retriever.KeywordIndexCount())
	assert.Equal(t, 2, f.pipeline.KeywordDocCount())

	results, err := f.retriever.Retrieve(ctx, "parking lot", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Parking", results[0].Metadata.Section)
	assert.Equal(t, "Check-in", results[0].Metadata.Title)
	assert.Equal(t, 1, results[0].Metadata.Position)
}

func TestPipeline_KeywordIndexAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.True(t, f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc)).Success)
	require.True(t, f.pipeline.IndexDocument(ctx, f.write(t, "b.txt", "Badges are issued on the first day.")).Success)
	assert.Equal(t, 3, f.retriever.KeywordIndexCount())
}

func TestPipeline_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t)
		res := f.pipeline.IndexDocument(ctx, filepath.Join(f.dir, "missing.md"))
		assert.False(t, res.Success)
		assert.Equal(t, "missing.md", res.Source)
		assert.Contains(t, res.ErrorMessage, "document not found")
		assert.False(t, strings.HasPrefix(res.ErrorMessage, "Indexing failed"))
	})

	t.Run("embedding error", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.Err = errors.New("quota exceeded")
		res := f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc))
		assert.False(t, res.Success)
		assert.True(t, strings.HasPrefix(res.ErrorMessage, "Indexing failed: "), res.ErrorMessage)
		assert.Contains(t, res.ErrorMessage, "quota exceeded")
		assert.Zero(t, f.pipeline.KeywordDocCount())
	})

	t.Run("empty document", func(t *testing.T) {
		f := newFixture(t)
		res := f.pipeline.IndexDocument(ctx, f.write(t, "empty.md", "# Only a title\n"))
		assert.True(t, res.Success)
		assert.Zero(t, res.ChunksCreated)
		assert.Zero(t, f.embedder.BatchCalls())
	})
}

func TestPipeline_IndexAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, "b.md", checkinDoc)
	f.write(t, "A.txt", "Badges are issued on the first day.")
	f.write(t, "notes.pdf", "ignored")

	results, err := f.pipeline.IndexAll(ctx, f.dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A.txt", results[0].Source)
	assert.Equal(t, "b.md", results[1].Source)

	s := Summarize(results)
	assert.Equal(t, 2, s.SuccessfulDocs)
	assert.Equal(t, 3, s.TotalChunks)
	assert.Empty(t, s.FailedDocs)
}

func TestPipeline_IndexAllEmptyDir(t *testing.T) {
	f := newFixture(t)
	results, err := f.pipeline.IndexAll(context.Background(), f.dir)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPipeline_ClearIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc)).Success)
	require.NoError(t, f.cache.Set(ctx, "Where do I park?", "Lot B.", "[]"))

	require.NoError(t, f.pipeline.ClearIndex(ctx))

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.retriever.KeywordIndexCount())
	assert.Zero(t, f.pipeline.KeywordDocCount())
	n, err = f.cache.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPipeline_IndexDocumentClearsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, "Where do I park?", "Lot B.", "[]"))

	require.True(t, f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc)).Success)

	n, err := f.cache.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingClearer struct{}

func (failingClearer) Clear(context.Context) error { return errors.New("cache offline") }

func TestPipeline_IndexDocumentCacheClearFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithCache(failingClearer{}))

	res := f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc))
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "cache offline")
}

func TestPipeline_Restore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.True(t, f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc)).Success)

	// A fresh pipeline over the same store starts with no keyword documents.
	retriever := retrieval.NewHybridRetriever(f.embedder, f.store, retrieval.DefaultOptions(), nil)
	restarted := NewPipeline(loader.NewFileLoader(), markdown.NewChunker(markdown.DefaultConfig()), f.embedder, f.store, nil,
		WithKeywordIndex(retriever))
	require.Zero(t, retriever.KeywordIndexCount())

	require.NoError(t, restarted.Restore(ctx))
	assert.Equal(t, 2, restarted.KeywordDocCount())
	assert.Equal(t, 2, retriever.KeywordIndexCount())
}

type summarizer struct{ err error }

func (s summarizer) GenerateMetadata(ctx context.Context, source, content string) (*metadata.DocumentMetadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &metadata.DocumentMetadata{Summary: "Summary of " + source}, nil
}

func TestPipeline_Summarizer(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, WithSummarizer(summarizer{}))
	require.True(t, f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc)).Success)
	var summaries []string
	require.NoError(t, f.store.ScrollChunks(ctx, func(c storage.DocumentChunk) error {
		summaries = append(summaries, c.Metadata.Summary)
		return nil
	}))
	assert.Equal(t, []string{"Summary of a.md", "Summary of a.md"}, summaries)

	f = newFixture(t, WithSummarizer(summarizer{err: errors.New("llm down")}))
	res := f.pipeline.IndexDocument(ctx, f.write(t, "a.md", checkinDoc))
	assert.True(t, res.Success, "summary failures do not fail indexing")
}

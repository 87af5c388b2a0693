// Package retrieval finds the chunks most relevant to a query, combining
// vector similarity with BM25 keyword scoring.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/storage"
)

// Retriever returns at most topK results for a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]storage.RetrievalResult, error)
}

// Options tunes fusion and BM25 scoring.
type Options struct {
	SemanticWeight float64
	KeywordWeight  float64
	RRFK           int
	BM25K1         float64
	BM25B          float64
}

// DefaultOptions returns equal weights, rrf_k 60 and standard BM25 parameters.
func DefaultOptions() Options {
	return Options{
		SemanticWeight: 0.5,
		KeywordWeight:  0.5,
		RRFK:           60,
		BM25K1:         1.5,
		BM25B:          0.75,
	}
}

// HybridRetriever fuses semantic and keyword results. The keyword index is
// replaced wholesale by BuildKeywordIndex; queries read whichever snapshot
// was current when they started.
type HybridRetriever struct {
	embedder provider.EmbeddingProvider
	store    storage.VectorStore
	opts     Options
	index    atomic.Pointer[keywordIndex]
	logger   *slog.Logger
}

// NewHybridRetriever creates a retriever with an empty keyword index.
func NewHybridRetriever(embedder provider.EmbeddingProvider, store storage.VectorStore, opts Options, logger *slog.Logger) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.RRFK <= 0 {
		opts.RRFK = def.RRFK
	}
	if opts.BM25K1 <= 0 {
		opts.BM25K1 = def.BM25K1
	}
	if opts.BM25B < 0 || opts.BM25B > 1 {
		opts.BM25B = def.BM25B
	}
	if opts.SemanticWeight <= 0 && opts.KeywordWeight <= 0 {
		opts.SemanticWeight, opts.KeywordWeight = def.SemanticWeight, def.KeywordWeight
	}

	r := &HybridRetriever{
		embedder: embedder,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
	r.index.Store(newKeywordIndex(nil, opts.BM25K1, opts.BM25B))
	return r
}

// BuildKeywordIndex replaces the keyword index with one built from docs.
func (r *HybridRetriever) BuildKeywordIndex(docs []IndexedDocument) {
	r.index.Store(newKeywordIndex(docs, r.opts.BM25K1, r.opts.BM25B))
	r.logger.Debug("Built keyword index", "documents", len(docs))
}

// ClearKeywordIndex replaces the keyword index with an empty one.
func (r *HybridRetriever) ClearKeywordIndex() {
	r.index.Store(newKeywordIndex(nil, r.opts.BM25K1, r.opts.BM25B))
}

// KeywordIndexCount returns the number of documents in the current snapshot.
func (r *HybridRetriever) KeywordIndexCount() int {
	return r.index.Load().size()
}

// Retrieve over-fetches 2*topK candidates from each leg and fuses them.
// An empty vector store returns no results without calling the embedder.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]storage.RetrievalResult, error) {
	if topK <= 0 {
		return []storage.RetrievalResult{}, nil
	}

	count, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if count == 0 {
		return []storage.RetrievalResult{}, nil
	}

	candidates := 2 * topK
	var semantic, keyword []storage.RetrievalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emb, err := r.embedder.Embed(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		semantic, err = r.store.Query(gctx, emb, min(candidates, count))
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		keyword = r.index.Load().search(query, candidates)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := FuseRRF(semantic, keyword, r.opts.SemanticWeight, r.opts.KeywordWeight, r.opts.RRFK)
	if len(fused) > topK {
		fused = fused[:topK]
	}

	r.logger.Debug("Hybrid retrieval",
		"semantic", len(semantic),
		"keyword", len(keyword),
		"returned", len(fused),
	)
	return fused, nil
}

// SemanticRetriever queries the vector store only. Score is the cosine
// similarity.
type SemanticRetriever struct {
	embedder provider.EmbeddingProvider
	store    storage.VectorStore
}

// NewSemanticRetriever creates a vector-only retriever.
func NewSemanticRetriever(embedder provider.EmbeddingProvider, store storage.VectorStore) *SemanticRetriever {
	return &SemanticRetriever{embedder: embedder, store: store}
}

func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, topK int) ([]storage.RetrievalResult, error) {
	if topK <= 0 {
		return []storage.RetrievalResult{}, nil
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.store.Query(ctx, emb, topK)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return results, nil
}

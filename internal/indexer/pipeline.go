// Package indexer turns source documents into stored, searchable chunks and
// keeps the keyword index and answer cache consistent with the corpus.
package indexer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/rag-assistant/internal/loader"
	"github.com/bull/rag-assistant/internal/markdown"
	"github.com/bull/rag-assistant/internal/metadata"
	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/retrieval"
	"github.com/bull/rag-assistant/internal/storage"
)

// Result reports the outcome of indexing one document.
type Result struct {
	Source        string `json:"source"`
	ChunksCreated int    `json:"chunks_created"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// KeywordIndex is the part of the hybrid retriever the pipeline maintains.
type KeywordIndex interface {
	BuildKeywordIndex(docs []retrieval.IndexedDocument)
	ClearKeywordIndex()
}

// CacheClearer invalidates cached answers.
type CacheClearer interface {
	Clear(ctx context.Context) error
}

// Summarizer produces a document summary stored with every chunk.
type Summarizer interface {
	GenerateMetadata(ctx context.Context, source, content string) (*metadata.DocumentMetadata, error)
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithKeywordIndex keeps idx rebuilt from every indexed chunk.
func WithKeywordIndex(idx KeywordIndex) Option {
	return func(p *Pipeline) { p.keyword = idx }
}

// WithCache clears c whenever the index is cleared.
func WithCache(c CacheClearer) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithSummarizer attaches a generated summary to each chunk's metadata.
func WithSummarizer(s Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// Pipeline orchestrates loading, chunking, embedding and storage. Writers
// (IndexDocument, ClearIndex, Restore) are serialized; queries never take
// the pipeline lock.
type Pipeline struct {
	loader     loader.Loader
	chunker    *markdown.Chunker
	embedder   provider.EmbeddingProvider
	store      storage.VectorStore
	keyword    KeywordIndex
	cache      CacheClearer
	summarizer Summarizer
	logger     *slog.Logger

	mu   sync.Mutex
	docs []retrieval.IndexedDocument
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(
	l loader.Loader,
	chunker *markdown.Chunker,
	embedder provider.EmbeddingProvider,
	store storage.VectorStore,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		loader:   l,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexDocument indexes the document at path. Failures are reported in the
// result rather than returned.
func (p *Pipeline) IndexDocument(ctx context.Context, path string) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.indexDocument(ctx, path)
	if err == nil {
		return res
	}

	res = Result{Source: filepath.Base(path)}
	var loadErr *loader.Error
	if errors.As(err, &loadErr) {
		p.logger.Error("Failed to load document", "path", path, "error", err)
		res.ErrorMessage = err.Error()
	} else {
		p.logger.Error("Failed to index document", "path", path, "error", err)
		res.ErrorMessage = fmt.Sprintf("Indexing failed: %v", err)
	}
	return res
}

func (p *Pipeline) indexDocument(ctx context.Context, path string) (Result, error) {
	doc, err := p.loader.Load(ctx, path)
	if err != nil {
		return Result{}, err
	}
	source := doc.Source
	if source == "" {
		source = filepath.Base(path)
	}

	chunks := p.chunker.Chunk(doc.Content, source, doc.Title)
	if len(chunks) == 0 {
		p.logger.Info("Document produced no chunks", "source", source)
		return Result{Source: source, Success: true}, nil
	}

	var summary string
	if p.summarizer != nil {
		meta, err := p.summarizer.GenerateMetadata(ctx, source, doc.Content)
		if err != nil {
			p.logger.Warn("Metadata generation failed, using empty", "source", source, "error", err)
		} else {
			summary = meta.Summary
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return Result{}, fmt.Errorf("embeddings: expected %d vectors, got %d", len(chunks), len(embeddings))
	}

	stored := make([]storage.DocumentChunk, len(chunks))
	for i, c := range chunks {
		stored[i] = storage.DocumentChunk{
			ID:      uuid.New().String(),
			Content: c.Content,
			Metadata: storage.Metadata{
				Source:   c.Source,
				Section:  c.Section,
				Title:    c.Title,
				Position: c.Position,
				Summary:  summary,
			},
			Embedding: embeddings[i],
		}
	}
	if err := p.store.AddChunks(ctx, stored); err != nil {
		return Result{}, fmt.Errorf("store chunks: %w", err)
	}

	for _, c := range stored {
		p.docs = append(p.docs, retrieval.IndexedDocument{ID: c.ID, Content: c.Content, Metadata: c.Metadata})
	}
	p.rebuildKeywordIndex()

	// Cached answers were built from the previous corpus.
	if p.cache != nil {
		if err := p.cache.Clear(ctx); err != nil {
			return Result{}, fmt.Errorf("clear cache: %w", err)
		}
	}

	p.logger.Info("Indexed document", "source", source, "chunks", len(stored))
	return Result{Source: source, ChunksCreated: len(stored), Success: true}, nil
}

// IndexAll indexes every document the loader lists under dir, one at a time.
func (p *Pipeline) IndexAll(ctx context.Context, dir string) ([]Result, error) {
	start := time.Now()

	paths, err := p.loader.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(paths) == 0 {
		p.logger.Warn("No documents found", "dir", dir)
		return nil, nil
	}
	p.logger.Info("Found documents", "count", len(paths))

	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, p.IndexDocument(ctx, path))
	}

	s := Summarize(results)
	p.logger.Info("Indexing complete",
		"successful", s.SuccessfulDocs,
		"failed", len(s.FailedDocs),
		"chunks", s.TotalChunks,
		"duration", time.Since(start),
	)
	return results, nil
}

// ClearIndex empties the vector store, the keyword documents, the keyword
// index and the answer cache together.
func (p *Pipeline) ClearIndex(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear vector store: %w", err)
	}
	p.docs = nil
	if p.keyword != nil {
		p.keyword.ClearKeywordIndex()
	}
	if p.cache != nil {
		if err := p.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	p.logger.Info("Cleared index")
	return nil
}

// Restore rebuilds the keyword documents from chunks already in the vector
// store. Stores that cannot enumerate their chunks are left as they are.
func (p *Pipeline) Restore(ctx context.Context) error {
	scanner, ok := p.store.(storage.Scanner)
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var docs []retrieval.IndexedDocument
	err := scanner.ScrollChunks(ctx, func(c storage.DocumentChunk) error {
		docs = append(docs, retrieval.IndexedDocument{ID: c.ID, Content: c.Content, Metadata: c.Metadata})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scroll chunks: %w", err)
	}

	slices.SortStableFunc(docs, func(a, b retrieval.IndexedDocument) int {
		if c := cmp.Compare(a.Metadata.Source, b.Metadata.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Metadata.Position, b.Metadata.Position)
	})
	p.docs = docs
	p.rebuildKeywordIndex()

	p.logger.Info("Restored keyword index", "chunks", len(docs))
	return nil
}

// KeywordDocCount returns the number of chunks tracked for keyword search.
func (p *Pipeline) KeywordDocCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}

func (p *Pipeline) rebuildKeywordIndex() {
	if p.keyword == nil {
		return
	}
	p.keyword.BuildKeywordIndex(slices.Clone(p.docs))
	p.logger.Debug("Rebuilt keyword index", "documents", len(p.docs))
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Source string
	Reason string
}

// Summary aggregates a batch of indexing results.
type Summary struct {
	TotalDocs      int
	SuccessfulDocs int
	TotalChunks    int
	FailedDocs     []FailedDoc
}

// Summarize totals results.
func Summarize(results []Result) Summary {
	s := Summary{TotalDocs: len(results)}
	for _, r := range results {
		if !r.Success {
			s.FailedDocs = append(s.FailedDocs, FailedDoc{Source: r.Source, Reason: r.ErrorMessage})
			continue
		}
		s.SuccessfulDocs++
		s.TotalChunks += r.ChunksCreated
	}
	return s
}

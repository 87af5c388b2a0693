// Package cache stores generated answers keyed by question embedding so that
// near-identical questions skip retrieval and generation.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bull/rag-assistant/internal/provider"
)

// Entry is a cache hit.
type Entry struct {
	Question        string
	Answer          string
	ChunksJSON      string
	CreatedAt       time.Time
	SimilarityScore float64
}

// Record is a stored cache row.
type Record struct {
	ID         string
	Question   string
	Answer     string
	ChunksJSON string
	CreatedAt  time.Time
	Embedding  []float32
}

// Match is the nearest stored record to a query embedding.
type Match struct {
	Record
	Similarity float64
}

// Store persists cache records and finds the nearest one by cosine similarity.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	// Nearest returns nil with no error when the store is empty.
	Nearest(ctx context.Context, embedding []float32) (*Match, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Options gate what counts as a hit.
type Options struct {
	SimilarityThreshold float64
	TTL                 time.Duration
}

// DefaultOptions returns a 0.95 similarity threshold and a 24 hour TTL.
func DefaultOptions() Options {
	return Options{SimilarityThreshold: 0.95, TTL: 24 * time.Hour}
}

// SemanticCache answers repeated questions from a Store.
type SemanticCache struct {
	embedder provider.EmbeddingProvider
	store    Store
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a semantic cache over store.
func New(embedder provider.EmbeddingProvider, store Store, opts Options, logger *slog.Logger) *SemanticCache {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = def.SimilarityThreshold
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	return &SemanticCache{
		embedder: embedder,
		store:    store,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

// Get returns the cached entry for the nearest stored question, or nil when
// the cache is empty, the match is below the threshold, or it has expired.
func (c *SemanticCache) Get(ctx context.Context, question string) (*Entry, error) {
	count, err := c.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count cache: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	emb, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	match, err := c.store.Nearest(ctx, emb)
	if err != nil {
		return nil, fmt.Errorf("nearest cache entry: %w", err)
	}
	if match == nil {
		return nil, nil
	}

	if match.Similarity < c.opts.SimilarityThreshold {
		c.logger.Debug("Cache miss", "reason", "below_threshold", "similarity", match.Similarity)
		return nil, nil
	}
	if age := c.now().Sub(match.CreatedAt); age > c.opts.TTL {
		c.logger.Debug("Cache miss", "reason", "expired", "age", age)
		return nil, nil
	}

	c.logger.Debug("Cache hit", "similarity", match.Similarity)
	return &Entry{
		Question:        match.Question,
		Answer:          match.Answer,
		ChunksJSON:      match.ChunksJSON,
		CreatedAt:       match.CreatedAt,
		SimilarityScore: match.Similarity,
	}, nil
}

// Set always inserts a new record.
func (c *SemanticCache) Set(ctx context.Context, question, answer, chunksJSON string) error {
	emb, err := c.embedder.Embed(ctx, question)
	if err != nil {
		return fmt.Errorf("embed question: %w", err)
	}

	err = c.store.Insert(ctx, Record{
		ID:         uuid.NewString(),
		Question:   question,
		Answer:     answer,
		ChunksJSON: chunksJSON,
		CreatedAt:  c.now().UTC(),
		Embedding:  emb,
	})
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Clear drops every cached answer.
func (c *SemanticCache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.logger.Info("Cache cleared")
	return nil
}

// Count returns the number of stored records.
func (c *SemanticCache) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bull/rag-assistant/internal/vector"
)

// MemoryStore is an in-process VectorStore using brute-force cosine search.
// It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    []DocumentChunk
	dimension int
}

// NewMemoryStore creates an empty store. A dimension of 0 accepts vectors of
// any length, otherwise mismatching vectors are rejected.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension}
}

func (s *MemoryStore) AddChunks(ctx context.Context, chunks []DocumentChunk) error {
	for i, c := range chunks {
		if s.dimension > 0 && len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, embedding []float32, topK int) ([]RetrievalResult, error) {
	if topK <= 0 {
		return []RetrievalResult{}, nil
	}

	s.mu.RLock()
	results := make([]RetrievalResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		sim := vector.Cosine(embedding, c.Embedding)
		results = append(results, RetrievalResult{
			ID:         c.ID,
			Content:    c.Content,
			Metadata:   c.Metadata,
			Score:      sim,
			Similarity: sim,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.chunks = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// ScrollChunks visits chunks in insertion order.
func (s *MemoryStore) ScrollChunks(ctx context.Context, fn func(DocumentChunk) error) error {
	s.mu.RLock()
	snapshot := make([]DocumentChunk, len(s.chunks))
	copy(snapshot, s.chunks)
	s.mu.RUnlock()

	for _, c := range snapshot {
		c.Embedding = nil
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

package cache

import (
	"context"
	"sync"

	"github.com/bull/rag-assistant/internal/vector"
)

// MemoryStore keeps cache records in process.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	rec.Embedding = append([]float32(nil), rec.Embedding...)
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Nearest(ctx context.Context, embedding []float32) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nearest(s.records, embedding), nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// nearest scans records for the highest cosine similarity. The earliest
// record wins a tie.
func nearest(records []Record, embedding []float32) *Match {
	var best *Match
	for _, r := range records {
		sim := vector.Cosine(embedding, r.Embedding)
		if best == nil || sim > best.Similarity {
			best = &Match{Record: r, Similarity: sim}
		}
	}
	return best
}

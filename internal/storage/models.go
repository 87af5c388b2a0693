package storage

import "context"

// Metadata is the payload stored next to every chunk vector.
type Metadata struct {
	Source   string // Document id, usually the file name
	Section  string // Header text the chunk belongs to, may be empty
	Title    string // Document title
	Position int    // Ordering of the chunk within its source
	Summary  string // Optional LLM-generated document summary
}

// DocumentChunk is a chunk ready for storage, carrying its embedding.
type DocumentChunk struct {
	ID        string // UUID
	Content   string
	Metadata  Metadata
	Embedding []float32
}

// RetrievalResult is a ranked hit. Score depends on where the result came
// from: cosine similarity for vector search, BM25 weight for keyword search,
// and the fused RRF value after hybrid merging. Similarity always carries the
// cosine similarity from vector search, or 0 if the result was not found there.
type RetrievalResult struct {
	ID         string
	Content    string
	Metadata   Metadata
	Score      float64
	Similarity float64
}

// VectorStore persists chunk embeddings and answers nearest-neighbor queries.
type VectorStore interface {
	AddChunks(ctx context.Context, chunks []DocumentChunk) error
	Query(ctx context.Context, embedding []float32, topK int) ([]RetrievalResult, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Scanner is implemented by stores that can enumerate stored chunks. The
// Embedding field of the visited chunks is left empty.
type Scanner interface {
	ScrollChunks(ctx context.Context, fn func(DocumentChunk) error) error
}

// HealthChecker is implemented by stores backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// DefaultCollectionName is the Qdrant collection holding document chunks.
const DefaultCollectionName = "documents"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536

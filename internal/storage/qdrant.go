package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig locates the Qdrant instance and shapes the chunk collection.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port
	APIKey     string
	Collection string // Defaults to DefaultCollectionName
	Dimension  int    // Defaults to DefaultVectorDimension
}

// QdrantStorage is a VectorStore backed by a Qdrant collection.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(cfg QdrantConfig) (*QdrantStorage, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollectionName
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultVectorDimension
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return s, nil
}

// newBackoff is shared by health checks and upserts.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, newBackoff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Client exposes the underlying client so other collections (the semantic
// cache) can share the connection.
func (s *QdrantStorage) Client() *qdrant.Client {
	return s.client
}

// Dimension is the vector size of the chunk collection.
func (s *QdrantStorage) Dimension() int {
	return s.dimension
}

// EnsureCollection creates the chunk collection (cosine distance) and its
// payload index if missing. Idempotent.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	created, err := EnsureCollection(ctx, s.client, s.collection, s.dimension)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "source",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field source: %w", err)
	}
	return nil
}

// EnsureCollection creates a cosine collection with an unnamed vector of the
// given size. It reports whether the collection was created by this call.
func EnsureCollection(ctx context.Context, client *qdrant.Client, name string, dimension int) (bool, error) {
	collections, err := client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, existing := range collections {
		if existing == name {
			return false, nil
		}
	}

	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return true, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, newBackoff(ctx))
}

// AddChunks stores chunks with embeddings, batched in groups of 100.
func (s *QdrantStorage) AddChunks(ctx context.Context, chunks []DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	const batchSize = 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))

		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectors(chunk.Embedding...),
				Payload: qdrant.NewValueMap(chunkPayload(chunk)),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

func chunkPayload(c DocumentChunk) map[string]any {
	return map[string]any{
		"content":  c.Content,
		"source":   c.Metadata.Source,
		"section":  c.Metadata.Section,
		"title":    c.Metadata.Title,
		"position": c.Metadata.Position,
		"summary":  c.Metadata.Summary,
	}
}

func payloadMetadata(payload map[string]*qdrant.Value) Metadata {
	return Metadata{
		Source:   payload["source"].GetStringValue(),
		Section:  payload["section"].GetStringValue(),
		Title:    payload["title"].GetStringValue(),
		Position: int(payload["position"].GetIntegerValue()),
		Summary:  payload["summary"].GetStringValue(),
	}
}

// Query performs cosine similarity search. Score and Similarity both carry
// the Qdrant score.
func (s *QdrantStorage) Query(ctx context.Context, embedding []float32, topK int) ([]RetrievalResult, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}
	if topK <= 0 {
		return []RetrievalResult{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]RetrievalResult, 0, len(points))
	for _, p := range points {
		score := float64(p.Score)
		results = append(results, RetrievalResult{
			ID:         p.Id.GetUuid(),
			Content:    p.Payload["content"].GetStringValue(),
			Metadata:   payloadMetadata(p.Payload),
			Score:      score,
			Similarity: score,
		})
	}
	return results, nil
}

// Clear deletes and recreates the collection.
func (s *QdrantStorage) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

// Count returns the exact number of stored chunks.
func (s *QdrantStorage) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// ScrollChunks pages through every stored chunk, 100 at a time, without vectors.
func (s *QdrantStorage) ScrollChunks(ctx context.Context, fn func(DocumentChunk) error) error {
	var offset *qdrant.PointId
	batchSize := uint32(100)

	for {
		points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return fmt.Errorf("failed to scroll chunks: %w", err)
		}

		for _, p := range points {
			err := fn(DocumentChunk{
				ID:       p.Id.GetUuid(),
				Content:  p.Payload["content"].GetStringValue(),
				Metadata: payloadMetadata(p.Payload),
			})
			if err != nil {
				return err
			}
		}

		if next == nil || len(points) == 0 {
			return nil
		}
		offset = next
	}
}

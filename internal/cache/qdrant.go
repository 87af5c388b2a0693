package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/rag-assistant/internal/storage"
)

// DefaultQdrantCollection holds cache records when Qdrant is the backend.
const DefaultQdrantCollection = "semantic_cache"

// QdrantStore keeps cache records in their own Qdrant collection, sharing
// the client of the chunk store.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStore ensures the cache collection exists.
func NewQdrantStore(ctx context.Context, client *qdrant.Client, collection string, dimension int) (*QdrantStore, error) {
	if collection == "" {
		collection = DefaultQdrantCollection
	}
	s := &QdrantStore{client: client, collection: collection, dimension: dimension}
	if _, err := storage.EnsureCollection(ctx, client, collection, dimension); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) Insert(ctx context.Context, rec Record) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"question":    rec.Question,
				"answer":      rec.Answer,
				"chunks_json": rec.ChunksJSON,
				"created_at":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert cache record: %w", err)
	}
	return nil
}

func (s *QdrantStore) Nearest(ctx context.Context, embedding []float32) (*Match, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	p := points[0]
	created, err := time.Parse(time.RFC3339Nano, p.Payload["created_at"].GetStringValue())
	if err != nil {
		// Unparseable timestamps read as expired.
		created = time.Time{}
	}
	return &Match{
		Record: Record{
			ID:         p.Id.GetUuid(),
			Question:   p.Payload["question"].GetStringValue(),
			Answer:     p.Payload["answer"].GetStringValue(),
			ChunksJSON: p.Payload["chunks_json"].GetStringValue(),
			CreatedAt:  created,
		},
		Similarity: float64(p.Score),
	}, nil
}

// Clear deletes and recreates the cache collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete cache collection: %w", err)
	}
	_, err := storage.EnsureCollection(ctx, s.client, s.collection, s.dimension)
	return err
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count cache records: %w", err)
	}
	return int(n), nil
}

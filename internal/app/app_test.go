package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-assistant/internal/config"
	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/storage"
)

const dims = 8

// openAIServer fakes the embeddings and chat endpoints. Every text embeds to
// the same unit vector, so every question is a cache hit for every other.
func openAIServer(t *testing.T, answer string, chatCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			vec := make([]float64, dims)
			vec[0] = 1
			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "text-embedding-3-small",
				"data":   data,
				"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			chatCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "gpt-4o-mini",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": answer},
				}},
				"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func memoryConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		OpenAIAPIKey:             "test-key",
		OpenAIBaseURL:            baseURL + "/",
		LLMModel:                 "gpt-4o-mini",
		EmbeddingModel:           "text-embedding-3-small",
		EmbeddingDimensions:      dims,
		VectorStore:              config.VectorStoreMemory,
		CacheBackend:             config.CacheSQLite,
		CacheSQLitePath:          filepath.Join(t.TempDir(), "cache", "cache.db"),
		CacheSimilarityThreshold: 0.95,
		CacheTTL:                 time.Hour,
		HybridEnabled:            true,
		TopK:                     3,
		ChunkSize:                1500,
		ChunkOverlap:             200,
		LogLevel:                 "info",
		LogFormat:                "text",
	}
}

func TestNew_MemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	var chatCalls atomic.Int32
	srv := openAIServer(t, "Volunteers check in at the front desk.", &chatCalls)
	cfg := memoryConfig(t, srv.URL)
	require.NoError(t, cfg.Validate())

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })

	assert.NoError(t, a.Health(ctx))
	assert.True(t, a.Service.HybridEnabled())
	assert.True(t, a.Service.CacheEnabled())
	assert.False(t, a.Service.SafetyEnabled())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkin.md"),
		[]byte("# Check-in\n\nVolunteers check in at the front desk before each shift.\n"), 0o600))

	results, err := a.Service.IndexAllDocuments(ctx, dir)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].ErrorMessage)

	first, err := a.Service.Ask(ctx, "Where do I check in?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Volunteers check in at the front desk.", first.Answer)
	assert.False(t, first.Cached)
	require.NotEmpty(t, first.ChunksUsed)
	assert.Equal(t, "checkin.md", first.ChunksUsed[0].Source)

	second, err := a.Service.Ask(ctx, "Where do I check in?", nil)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), chatCalls.Load())

	_, err = os.Stat(cfg.CacheSQLitePath)
	assert.NoError(t, err, "sqlite cache file is created on startup")
}

func TestNew_RestartWithEmptyCorpusDropsCache(t *testing.T) {
	ctx := context.Background()
	var chatCalls atomic.Int32
	srv := openAIServer(t, "Volunteers check in at the front desk.", &chatCalls)
	cfg := memoryConfig(t, srv.URL)

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkin.md"),
		[]byte("# Check-in\n\nVolunteers check in at the front desk before each shift.\n"), 0o600))
	_, err = a.Service.IndexAllDocuments(ctx, dir)
	require.NoError(t, err)
	_, err = a.Service.Ask(ctx, "Where do I check in?", nil)
	require.NoError(t, err)
	cached, err := a.Service.CacheCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cached)
	require.NoError(t, a.Close())

	restarted, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, restarted.Close()) })

	docs, err := restarted.Service.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, docs)
	cached, err = restarted.Service.CacheCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, cached, "answers from the previous corpus are dropped")

	resp, err := restarted.Service.Ask(ctx, "Where do I check in?", nil)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Empty(t, resp.ChunksUsed)
}

func TestNew_MissingAPIKey(t *testing.T) {
	cfg := memoryConfig(t, "http://127.0.0.1:0")
	cfg.OpenAIAPIKey = ""

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, provider.ErrConfiguration)
}

func TestNew_QdrantCacheNeedsQdrantStore(t *testing.T) {
	cfg := memoryConfig(t, "http://127.0.0.1:0")
	cfg.CacheBackend = config.CacheQdrant

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "qdrant vector store")
}

type unreachableStore struct {
	*storage.MemoryStore
}

func (unreachableStore) Health(context.Context) error { return storage.ErrQdrantUnreachable }

func TestApp_Health(t *testing.T) {
	ctx := context.Background()

	healthy := &App{Store: storage.NewMemoryStore(dims)}
	assert.NoError(t, healthy.Health(ctx))

	down := &App{Store: unreachableStore{storage.NewMemoryStore(dims)}}
	assert.ErrorIs(t, down.Health(ctx), storage.ErrQdrantUnreachable)
}

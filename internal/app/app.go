// Package app assembles the question-answering service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/rag-assistant/internal/cache"
	"github.com/bull/rag-assistant/internal/config"
	"github.com/bull/rag-assistant/internal/embedding"
	"github.com/bull/rag-assistant/internal/llm"
	"github.com/bull/rag-assistant/internal/markdown"
	"github.com/bull/rag-assistant/internal/metadata"
	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/rag"
	"github.com/bull/rag-assistant/internal/retrieval"
	"github.com/bull/rag-assistant/internal/safety"
	"github.com/bull/rag-assistant/internal/storage"
)

// App owns the service and the connections behind it.
type App struct {
	Config  *config.Config
	Service *rag.Service
	Store   storage.VectorStore

	closers []io.Closer
	logger  *slog.Logger
}

// Option adjusts how New builds the service.
type Option func(*options)

type options struct {
	ragOpts []rag.Option
}

// WithRAGOptions passes extra options to the service, after the ones derived
// from configuration.
func WithRAGOptions(opts ...rag.Option) Option {
	return func(o *options) { o.ragOpts = append(o.ragOpts, opts...) }
}

// New connects to the configured backends and builds the service. When
// hybrid retrieval is on, the keyword index is rebuilt from whatever the
// vector store already holds.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	client, err := embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewEmbedder(client, embedding.Options{
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	})

	var model provider.LLMProvider = llm.NewOpenAIProvider(client, cfg.LLMModel, logger)
	if cfg.LLMFallbackModel != "" {
		model = llm.NewFallbackProvider(model, cfg.LLMFallbackModel, logger)
	}

	qdrantClient, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var ragOpts []rag.Option
	answerCache, err := a.openCache(ctx, cfg, embedder, qdrantClient)
	if err != nil {
		return nil, err
	}
	if answerCache != nil {
		ragOpts = append(ragOpts, rag.WithCache(answerCache))
	}

	if cfg.HybridEnabled {
		ragOpts = append(ragOpts, rag.WithHybridRetriever(
			retrieval.NewHybridRetriever(embedder, a.Store, retrieval.DefaultOptions(), logger)))
	}

	if cfg.SafetyEnabled {
		var safetyOpts []safety.Option
		if cfg.ModerationEnabled {
			safetyOpts = append(safetyOpts, safety.WithModerator(
				safety.NewOpenAIModerator(client.Client(), "", logger)))
		}
		ragOpts = append(ragOpts, rag.WithSafety(safety.NewService(logger, safetyOpts...)))
	}

	if cfg.MetadataEnabled {
		ragOpts = append(ragOpts, rag.WithSummarizer(metadata.NewGenerator(model, "", 0, logger)))
	}

	chunking := markdown.DefaultConfig()
	chunking.MaxSize, chunking.Overlap = cfg.ChunkSize, cfg.ChunkOverlap
	a.Service = rag.NewService(model, embedder, a.Store, rag.Config{
		TopK:           cfg.TopK,
		Chunking:       chunking,
		ModerateOutput: cfg.ModerateOutput,
	}, logger, append(ragOpts, o.ragOpts...)...)

	if err := a.Service.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore keyword index: %w", err)
	}
	if err := a.dropOrphanedCache(ctx); err != nil {
		return nil, err
	}

	logger.Info("Service ready",
		"vector_store", cfg.VectorStore,
		"cache", cfg.CacheBackend,
		"hybrid", a.Service.HybridEnabled(),
		"safety", a.Service.SafetyEnabled(),
		"keyword_docs", a.Service.KeywordIndexCount())

	ok = true
	return a, nil
}

// openStore sets a.Store. It returns the Qdrant client when the store is
// Qdrant-backed so the cache can share it.
func (a *App) openStore(ctx context.Context, cfg *config.Config) (*qdrant.Client, error) {
	if cfg.VectorStore == config.VectorStoreMemory {
		a.Store = storage.NewMemoryStore(cfg.EmbeddingDimensions)
		return nil, nil
	}

	qs, err := storage.NewQdrantStorage(storage.QdrantConfig{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Dimension:  cfg.EmbeddingDimensions,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, qs)
	if err := qs.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	a.Store = qs
	return qs.Client(), nil
}

func (a *App) openCache(ctx context.Context, cfg *config.Config, embedder provider.EmbeddingProvider, qc *qdrant.Client) (*cache.SemanticCache, error) {
	var store cache.Store
	switch cfg.CacheBackend {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheMemory:
		store = cache.NewMemoryStore()
	case config.CacheSQLite:
		s, err := cache.NewSQLiteStore(cfg.CacheSQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		store = s
	case config.CacheQdrant:
		if qc == nil {
			return nil, errors.New("qdrant cache requires the qdrant vector store")
		}
		s, err := cache.NewQdrantStore(ctx, qc, "", cfg.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	return cache.New(embedder, store, cache.Options{
		SimilarityThreshold: cfg.CacheSimilarityThreshold,
		TTL:                 cfg.CacheTTL,
	}, a.logger), nil
}

// dropOrphanedCache clears a persistent cache that outlived its corpus, as
// happens when a SQLite cache is paired with the in-memory vector store.
func (a *App) dropOrphanedCache(ctx context.Context) error {
	docs, err := a.Service.DocumentCount(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if docs > 0 {
		return nil
	}
	cached, err := a.Service.CacheCount(ctx)
	if err != nil {
		return fmt.Errorf("count cached answers: %w", err)
	}
	if cached == 0 {
		return nil
	}
	a.logger.Info("Clearing cached answers for an empty index", "cached", cached)
	if err := a.Service.ClearCache(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Health reports whether the vector store is reachable. Stores without a
// remote backend are always healthy.
func (a *App) Health(ctx context.Context) error {
	if h, ok := a.Store.(storage.HealthChecker); ok {
		return h.Health(ctx)
	}
	return nil
}

// Close releases backend connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Package rag answers questions over the indexed corpus: it screens the
// question, consults the answer cache, retrieves context, generates an
// answer, checks it against the sources and scores its confidence.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bull/rag-assistant/internal/cache"
	"github.com/bull/rag-assistant/internal/confidence"
	"github.com/bull/rag-assistant/internal/indexer"
	"github.com/bull/rag-assistant/internal/loader"
	"github.com/bull/rag-assistant/internal/markdown"
	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/retrieval"
	"github.com/bull/rag-assistant/internal/safety"
	"github.com/bull/rag-assistant/internal/storage"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 5

// ChunkWithScore is a retrieved chunk as returned to callers. Score is the
// ranking score (the fused RRF value in hybrid mode); Similarity is the
// cosine similarity from vector search.
type ChunkWithScore struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Section    string  `json:"section"`
	Score      float64 `json:"score"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Response is the answer to a question. A blocked response always has low
// confidence and a zero score.
type Response struct {
	Answer          string               `json:"answer"`
	ChunksUsed      []ChunkWithScore     `json:"chunks_used"`
	Question        string               `json:"question"`
	ConfidenceLevel confidence.Level     `json:"confidence_level"`
	ConfidenceScore float64              `json:"confidence_score"`
	Blocked         bool                 `json:"blocked"`
	BlockedReason   safety.ViolationType `json:"blocked_reason,omitempty"`
	Cached          bool                 `json:"cached"`
}

// Config holds the tunables of a Service.
type Config struct {
	TopK           int
	Model          string // empty uses the provider default
	Chunking       markdown.Config
	ModerateOutput bool
}

// Option attaches an optional collaborator.
type Option func(*Service)

// WithCache enables the semantic answer cache.
func WithCache(c *cache.SemanticCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithHybridRetriever enables hybrid retrieval. Without it retrieval is
// semantic only.
func WithHybridRetriever(r *retrieval.HybridRetriever) Option {
	return func(s *Service) { s.hybrid = r }
}

// WithSafety enables input screening and the grounding check.
func WithSafety(sv *safety.Service) Option {
	return func(s *Service) { s.safety = sv }
}

// WithScorer replaces the default confidence scorer.
func WithScorer(sc *confidence.Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

// WithLoader sets the document loader used for indexing. The default reads
// the local file system.
func WithLoader(l loader.Loader) Option {
	return func(s *Service) { s.loader = l }
}

// WithSummarizer attaches generated document summaries to indexed chunks.
func WithSummarizer(sm indexer.Summarizer) Option {
	return func(s *Service) { s.summarizer = sm }
}

// Service is the question pipeline plus the index maintenance operations.
// Ask is safe for concurrent use.
type Service struct {
	llm        provider.LLMProvider
	embedder   provider.EmbeddingProvider
	store      storage.VectorStore
	hybrid     *retrieval.HybridRetriever
	cache      *cache.SemanticCache
	safety     *safety.Service
	scorer     *confidence.Scorer
	loader     loader.Loader
	summarizer indexer.Summarizer
	indexer    *indexer.Pipeline
	cfg        Config
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(
	llm provider.LLMProvider,
	embedder provider.EmbeddingProvider,
	store storage.VectorStore,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	s := &Service{
		llm:      llm,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = confidence.NewScorer()
	}
	if s.loader == nil {
		s.loader = loader.NewFileLoader()
	}

	var pipelineOpts []indexer.Option
	if s.hybrid != nil {
		pipelineOpts = append(pipelineOpts, indexer.WithKeywordIndex(s.hybrid))
	}
	if s.cache != nil {
		pipelineOpts = append(pipelineOpts, indexer.WithCache(s.cache))
	}
	if s.summarizer != nil {
		pipelineOpts = append(pipelineOpts, indexer.WithSummarizer(s.summarizer))
	}
	s.indexer = indexer.NewPipeline(s.loader, markdown.NewChunker(cfg.Chunking), embedder, store, logger, pipelineOpts...)
	return s
}

// Ask answers question, optionally continuing a conversation. Provider and
// vector store errors are returned; safety violations come back as blocked
// responses.
func (s *Service) Ask(ctx context.Context, question string, history []provider.Message) (*Response, error) {
	if s.safety != nil {
		if check := s.safety.CheckInput(ctx, question); !check.Safe {
			s.logger.Warn("Question blocked", "violation", check.Violation, "question_length", len(question))
			return blocked(question, check, nil), nil
		}
	}

	if resp := s.cached(ctx, question); resp != nil {
		return resp, nil
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	if count == 0 {
		s.logger.Info("No documents indexed, answering without context", "question_length", len(question))
		answer, err := s.generate(ctx, FallbackSystemPrompt, question, history)
		if err != nil {
			return nil, err
		}
		return &Response{
			Answer:          answer,
			ChunksUsed:      []ChunkWithScore{},
			Question:        question,
			ConfidenceLevel: confidence.Low,
		}, nil
	}

	chunks, err := s.Retrieve(ctx, question, s.cfg.TopK)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Generating answer", "context_chunks", len(chunks), "history_length", len(history))
	answer, err := s.generate(ctx, BuildSystemPrompt(chunks), question, history)
	if err != nil {
		return nil, err
	}

	var grounding *float64
	if s.safety != nil {
		if s.cfg.ModerateOutput {
			if check := s.safety.CheckOutput(ctx, answer); !check.Safe {
				s.logger.Warn("Answer blocked by moderation", "question_length", len(question))
				return blocked(question, check, chunks), nil
			}
		}
		if len(chunks) > 0 {
			contents := make([]string, len(chunks))
			sources := make([]string, len(chunks))
			for i, c := range chunks {
				contents[i], sources[i] = c.Content, c.Source
			}
			check, details := s.safety.CheckGrounding(answer, contents, sources)
			if !check.Safe {
				s.logger.Warn("Answer not grounded in sources", "question_length", len(question))
				return blocked(question, check, chunks), nil
			}
			grounding = &details.SupportRatio
		}
	}

	conf := s.scorer.Score(similarities(chunks), grounding)
	s.logger.Info("Answer generated",
		"question_length", len(question),
		"answer_length", len(answer),
		"chunks_used", len(chunks),
		"confidence_level", conf.Level,
		"confidence_score", conf.Score,
	)

	if s.cache != nil && len(chunks) > 0 && !conf.NeedsReview {
		s.remember(ctx, question, answer, chunks)
	}

	return &Response{
		Answer:          answer,
		ChunksUsed:      chunks,
		Question:        question,
		ConfidenceLevel: conf.Level,
		ConfidenceScore: conf.Score,
	}, nil
}

// Retrieve returns the topK most relevant chunks for query.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) ([]ChunkWithScore, error) {
	var (
		results []storage.RetrievalResult
		err     error
	)
	if s.hybrid != nil {
		results, err = s.hybrid.Retrieve(ctx, query, topK)
	} else {
		results, err = retrieval.NewSemanticRetriever(s.embedder, s.store).Retrieve(ctx, query, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	chunks := make([]ChunkWithScore, len(results))
	for i, r := range results {
		source := r.Metadata.Source
		if source == "" {
			source = "unknown"
		}
		chunks[i] = ChunkWithScore{
			Content:    r.Content,
			Source:     source,
			Section:    r.Metadata.Section,
			Score:      r.Score,
			Title:      r.Metadata.Title,
			Similarity: r.Similarity,
		}
	}
	return chunks, nil
}

func (s *Service) generate(ctx context.Context, systemPrompt, question string, history []provider.Message) (string, error) {
	var (
		answer string
		err    error
	)
	if len(history) > 0 {
		messages := make([]provider.Message, 0, len(history)+1)
		messages = append(messages, history...)
		messages = append(messages, provider.Message{Role: provider.RoleUser, Content: question})
		answer, err = s.llm.CompleteWithHistory(ctx, systemPrompt, messages, s.cfg.Model)
	} else {
		answer, err = s.llm.Complete(ctx, systemPrompt, question, s.cfg.Model)
	}
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// cached returns a response built from a cache hit. Cache failures are
// logged and treated as a miss.
func (s *Service) cached(ctx context.Context, question string) *Response {
	if s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, question)
	if err != nil {
		s.logger.Warn("Cache lookup failed, continuing without cache", "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	var chunks []ChunkWithScore
	if err := json.Unmarshal([]byte(entry.ChunksJSON), &chunks); err != nil {
		s.logger.Warn("Discarding unreadable cache entry", "error", err)
		return nil
	}
	if chunks == nil {
		chunks = []ChunkWithScore{}
	}

	conf := s.scorer.Score(similarities(chunks), nil)
	s.logger.Info("Cache hit", "question_length", len(question), "similarity", entry.SimilarityScore)
	return &Response{
		Answer:          entry.Answer,
		ChunksUsed:      chunks,
		Question:        question,
		ConfidenceLevel: conf.Level,
		ConfidenceScore: conf.Score,
		Cached:          true,
	}
}

func (s *Service) remember(ctx context.Context, question, answer string, chunks []ChunkWithScore) {
	data, err := json.Marshal(chunks)
	if err != nil {
		s.logger.Warn("Failed to encode chunks for cache", "error", err)
		return
	}
	if err := s.cache.Set(ctx, question, answer, string(data)); err != nil {
		s.logger.Warn("Failed to cache answer", "error", err)
	}
}

func blocked(question string, check safety.CheckResult, chunks []ChunkWithScore) *Response {
	if chunks == nil {
		chunks = []ChunkWithScore{}
	}
	return &Response{
		Answer:          check.Message,
		ChunksUsed:      chunks,
		Question:        question,
		ConfidenceLevel: confidence.Low,
		ConfidenceScore: 0,
		Blocked:         true,
		BlockedReason:   check.Violation,
	}
}

func similarities(chunks []ChunkWithScore) []float64 {
	out := make([]float64, len(chunks))
	for i, c := range chunks {
		out[i] = c.Similarity
	}
	return out
}

// IndexDocument indexes one document.
func (s *Service) IndexDocument(ctx context.Context, path string) indexer.Result {
	return s.indexer.IndexDocument(ctx, path)
}

// IndexAllDocuments indexes every supported document under dir.
func (s *Service) IndexAllDocuments(ctx context.Context, dir string) ([]indexer.Result, error) {
	return s.indexer.IndexAll(ctx, dir)
}

// ClearIndex removes every chunk and invalidates the cache.
func (s *Service) ClearIndex(ctx context.Context) error {
	return s.indexer.ClearIndex(ctx)
}

// Restore rebuilds the keyword index from a persistent vector store.
func (s *Service) Restore(ctx context.Context) error {
	if s.hybrid == nil {
		return nil
	}
	return s.indexer.Restore(ctx)
}

// ClearCache empties the answer cache.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx)
}

// DocumentCount returns the number of stored chunks.
func (s *Service) DocumentCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// CacheCount returns the number of cached answers, 0 without a cache.
func (s *Service) CacheCount(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Count(ctx)
}

// KeywordIndexCount returns the size of the keyword index, 0 without
// hybrid retrieval.
func (s *Service) KeywordIndexCount() int {
	if s.hybrid == nil {
		return 0
	}
	return s.hybrid.KeywordIndexCount()
}

// HybridEnabled reports whether keyword search is fused into retrieval.
func (s *Service) HybridEnabled() bool {
	return s.hybrid != nil
}

// CacheEnabled reports whether answers are cached.
func (s *Service) CacheEnabled() bool {
	return s.cache != nil
}

// SafetyEnabled reports whether questions and answers are screened.
func (s *Service) SafetyEnabled() bool {
	return s.safety != nil
}

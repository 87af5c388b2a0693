package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/rag"
)

const maxSearchTopK = 20

// makeAskHandler creates the ask_question tool handler.
func makeAskHandler(svc Assistant, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		question := strings.TrimSpace(input.Question)
		if question == "" {
			return nil, AskQuestionOutput{}, errors.New("question is required")
		}

		history, err := toHistory(input.History)
		if err != nil {
			return nil, AskQuestionOutput{}, err
		}

		resp, err := svc.Ask(ctx, question, history)
		if err != nil {
			logger.Error("ask_question failed", "error", err)
			return nil, AskQuestionOutput{}, fmt.Errorf("failed to answer question: %w", err)
		}

		return nil, AskQuestionOutput{
			Answer:          resp.Answer,
			Sources:         toChunkResults(resp.ChunksUsed),
			ConfidenceLevel: string(resp.ConfidenceLevel),
			ConfidenceScore: resp.ConfidenceScore,
			Blocked:         resp.Blocked,
			BlockedReason:   string(resp.BlockedReason),
			Cached:          resp.Cached,
		}, nil
	}
}

// makeSearchHandler creates the search_chunks tool handler.
func makeSearchHandler(svc Assistant, defaultTopK int) func(
	context.Context, *mcp.CallToolRequest, SearchChunksInput,
) (*mcp.CallToolResult, SearchChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (
		*mcp.CallToolResult, SearchChunksOutput, error,
	) {
		query := strings.TrimSpace(input.Query)
		if query == "" {
			return nil, SearchChunksOutput{}, errors.New("query is required")
		}
		topK := input.TopK
		if topK <= 0 {
			topK = defaultTopK
		}
		topK = min(topK, maxSearchTopK)

		chunks, err := svc.Retrieve(ctx, query, topK)
		if err != nil {
			return nil, SearchChunksOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(chunks) == 0 {
			return nil, SearchChunksOutput{
				Results: []ChunkResult{},
				Message: "No matching chunks found. Index documents first or try broader search terms.",
			}, nil
		}
		return nil, SearchChunksOutput{Results: toChunkResults(chunks)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler. A failing
// commit lookup is not an error for the tool; the field is left empty.
func makeStatusHandler(svc Assistant, commits CommitSource, logger *slog.Logger) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		total, err := svc.DocumentCount(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("vector_store_error: failed to count chunks: %w", err)
		}
		cached, err := svc.CacheCount(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("cache_error: failed to count cached answers: %w", err)
		}

		out := StatusOutput{
			TotalChunks:      total,
			KeywordIndexDocs: svc.KeywordIndexCount(),
			CachedAnswers:    cached,
			HybridEnabled:    svc.HybridEnabled(),
			CacheEnabled:     svc.CacheEnabled(),
			SafetyEnabled:    svc.SafetyEnabled(),
		}
		if commits != nil {
			sha, err := commits.LatestCommitSHA(ctx)
			if err != nil {
				logger.Warn("Failed to read latest source commit", "error", err)
			} else {
				out.LatestSourceCommit = sha
			}
		}
		return nil, out, nil
	}
}

// makeClearCacheHandler creates the clear_cache tool handler.
func makeClearCacheHandler(svc Assistant) func(
	context.Context, *mcp.CallToolRequest, ClearCacheInput,
) (*mcp.CallToolResult, ClearCacheOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClearCacheInput) (
		*mcp.CallToolResult, ClearCacheOutput, error,
	) {
		if !svc.CacheEnabled() {
			return nil, ClearCacheOutput{Message: "Answer cache is disabled."}, nil
		}
		before, err := svc.CacheCount(ctx)
		if err != nil {
			return nil, ClearCacheOutput{}, fmt.Errorf("failed to count cached answers: %w", err)
		}
		if err := svc.ClearCache(ctx); err != nil {
			return nil, ClearCacheOutput{}, fmt.Errorf("failed to clear cache: %w", err)
		}
		return nil, ClearCacheOutput{
			Cleared: before,
			Message: fmt.Sprintf("Cleared %d cached answers.", before),
		}, nil
	}
}

func toHistory(in []HistoryMessage) ([]provider.Message, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]provider.Message, len(in))
	for i, m := range in {
		role := strings.ToLower(m.Role)
		if role != provider.RoleUser && role != provider.RoleAssistant {
			return nil, fmt.Errorf("history[%d]: role must be user or assistant, got %q", i, m.Role)
		}
		out[i] = provider.Message{Role: role, Content: m.Content}
	}
	return out, nil
}

func toChunkResults(chunks []rag.ChunkWithScore) []ChunkResult {
	out := make([]ChunkResult, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkResult{
			Source:     c.Source,
			Section:    c.Section,
			Title:      c.Title,
			Content:    c.Content,
			Score:      c.Score,
			Similarity: c.Similarity,
		}
	}
	return out
}

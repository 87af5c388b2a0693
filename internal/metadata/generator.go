// Package metadata generates document summaries with a language model so
// chunks can carry a description of the document they came from.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bull/rag-assistant/internal/provider"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 16000

// DocumentMetadata contains LLM-generated metadata for a document.
type DocumentMetadata struct {
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
}

const systemPrompt = `You describe documents for a search index. Respond with a single JSON object and nothing else.`

// Generator produces document metadata through an LLM provider.
type Generator struct {
	llm       provider.LLMProvider
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator creates a metadata generator. An empty model uses the
// provider default; maxTokens <= 0 uses DefaultMaxTokens.
func NewGenerator(llm provider.LLMProvider, model string, maxTokens int, logger *slog.Logger) *Generator {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, model: model, maxTokens: maxTokens, logger: logger}
}

// GenerateMetadata analyzes document content and produces a summary and entity list.
func (g *Generator) GenerateMetadata(ctx context.Context, source, content string) (*DocumentMetadata, error) {
	truncated := g.truncateContent(content)

	prompt := fmt.Sprintf(`Analyze this document and provide:
1. A concise summary (1-2 sentences) capturing the main topic and key points
2. A list of the key terms, names, or procedures it defines

Document source: %s

Document content:
%s

Respond in JSON format:
{"summary": "Brief description of what this document covers", "entities": ["Term1", "Term2"]}`, source, truncated)

	resp, err := g.llm.Complete(ctx, systemPrompt, prompt, g.model)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	metadata, err := parseResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return metadata, nil
}

// parseResponse decodes the model's JSON answer, tolerating a markdown
// code fence around it.
func parseResponse(resp string) (*DocumentMetadata, error) {
	s := strings.TrimSpace(resp)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	var metadata DocumentMetadata
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &metadata); err != nil {
		return nil, err
	}
	metadata.Summary = strings.TrimSpace(metadata.Summary)
	return &metadata, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxTokens * 4
	if len(content) <= maxChars {
		return content
	}

	g.logger.Warn("truncating document for metadata generation",
		"from_chars", len(content), "to_chars", maxChars, "estimated_tokens", g.maxTokens)

	cut := content[:maxChars]
	// Do not split a multi-byte rune.
	for len(cut) > 0 && !utf8.RuneStart(content[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// Package provider defines the contracts for the external model services
// the answering pipeline depends on.
package provider

import "context"

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmbeddingProvider turns text into dense vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// LLMProvider generates completions. An empty model selects the provider default.
type LLMProvider interface {
	Complete(ctx context.Context, systemPrompt, userMessage, model string) (string, error)
	CompleteWithHistory(ctx context.Context, systemPrompt string, messages []Message, model string) (string, error)
}

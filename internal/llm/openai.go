// Package llm implements provider.LLMProvider on OpenAI-compatible chat
// completion endpoints.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"

	"github.com/bull/rag-assistant/internal/embedding"
	"github.com/bull/rag-assistant/internal/provider"
)

// DefaultModel is used when neither the provider nor the call names a model.
const DefaultModel = "gpt-4o-mini"

// OpenAIProvider calls the chat completions API.
type OpenAIProvider struct {
	client *embedding.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIProvider creates a provider whose default model is model.
func NewOpenAIProvider(client *embedding.Client, model string, logger *slog.Logger) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{client: client, model: model, logger: logger}
}

// Model returns the default model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userMessage, model string) (string, error) {
	return p.CompleteWithHistory(ctx, systemPrompt, []provider.Message{{Role: provider.RoleUser, Content: userMessage}}, model)
}

func (p *OpenAIProvider) CompleteWithHistory(ctx context.Context, systemPrompt string, messages []provider.Message, model string) (string, error) {
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toChatMessages(systemPrompt, messages),
	}

	var answer string
	err := p.client.Do(ctx, func(c *openai.Client) error {
		resp, err := c.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return emptyResponse(model)
		}
		answer = resp.Choices[0].Message.Content
		p.logger.Debug("completion",
			"model", model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
		)
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func toChatMessages(systemPrompt string, messages []provider.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case provider.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case provider.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func emptyResponse(model string) error {
	return provider.NewError(embedding.ProviderName, provider.ErrProvider, fmt.Errorf("model %s returned no choices", model))
}

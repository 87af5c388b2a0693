package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bull/rag-assistant/internal/provider"
)

// FallbackProvider retries a failed completion once with a second model.
// If the fallback also fails the primary error is returned.
type FallbackProvider struct {
	inner         provider.LLMProvider
	fallbackModel string
	logger        *slog.Logger
}

// NewFallbackProvider wraps inner. An empty fallbackModel disables the retry.
func NewFallbackProvider(inner provider.LLMProvider, fallbackModel string, logger *slog.Logger) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{inner: inner, fallbackModel: fallbackModel, logger: logger}
}

func (f *FallbackProvider) Complete(ctx context.Context, systemPrompt, userMessage, model string) (string, error) {
	return f.run(ctx, model, func(m string) (string, error) {
		return f.inner.Complete(ctx, systemPrompt, userMessage, m)
	})
}

func (f *FallbackProvider) CompleteWithHistory(ctx context.Context, systemPrompt string, messages []provider.Message, model string) (string, error) {
	return f.run(ctx, model, func(m string) (string, error) {
		return f.inner.CompleteWithHistory(ctx, systemPrompt, messages, m)
	})
}

func (f *FallbackProvider) run(ctx context.Context, model string, call func(model string) (string, error)) (string, error) {
	answer, err := call(model)
	if err == nil || f.fallbackModel == "" || f.fallbackModel == model {
		return answer, err
	}

	var perr *provider.Error
	if !errors.As(err, &perr) || ctx.Err() != nil {
		return "", err
	}

	f.logger.Warn("primary model failed, trying fallback", "error", err, "fallback_model", f.fallbackModel)
	answer, ferr := call(f.fallbackModel)
	if ferr != nil {
		f.logger.Error("fallback model failed", "error", ferr)
		return "", err
	}
	return answer, nil
}

package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/rag-assistant/internal/provider"
)

// ProviderName tags errors raised by OpenAI-backed clients.
const ProviderName = "openai"

// Client wraps the OpenAI client shared by embedding, chat and moderation.
// Calls made through Do are retried on rate limiting and their errors are
// mapped to provider.Error.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client. baseURL may point at any
// OpenAI-compatible endpoint; empty uses the OpenAI default.
func NewClient(apiKey, baseURL string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, provider.NewError(ProviderName, provider.ErrConfiguration, errors.New("OPENAI_API_KEY not set"))
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	client := openai.NewClient(reqOpts...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., moderation).
func (c *Client) Client() *openai.Client {
	return c.client
}

// Do runs op with exponential backoff on HTTP 429. Other errors fail
// immediately. The returned error is a *provider.Error.
func (c *Client) Do(ctx context.Context, op func(*openai.Client) error) error {
	operation := func() error {
		err := op(c.client)
		if err == nil {
			return nil
		}
		if isRateLimitError(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return WrapError(err)
	}
	return nil
}

// WrapError classifies an OpenAI SDK error into a provider.Error kind.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		return err
	}

	kind := provider.ErrProvider
	var apiErr *openai.Error
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = provider.ErrTimeout
	case errors.As(err, &apiErr):
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			kind = provider.ErrRateLimited
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			kind = provider.ErrConfiguration
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = provider.ErrTimeout
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = provider.ErrTimeout
	}
	return provider.NewError(ProviderName, kind, err)
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func unexpected(format string, args ...any) error {
	return provider.NewError(ProviderName, provider.ErrProvider, fmt.Errorf(format, args...))
}

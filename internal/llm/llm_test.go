package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-assistant/internal/embedding"
	"github.com/bull/rag-assistant/internal/provider"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatServer(t *testing.T, got *chatRequest, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   got.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, url, model string) *OpenAIProvider {
	t.Helper()
	client, err := embedding.NewClient("test-key", url+"/", option.WithMaxRetries(0))
	require.NoError(t, err)
	return NewOpenAIProvider(client, model, nil)
}

func TestOpenAIProvider_CompleteWithHistory(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, &got, "Shifts start at 9am.")
	p := newProvider(t, srv.URL, "")

	answer, err := p.CompleteWithHistory(context.Background(), "You answer from context.", []provider.Message{
		{Role: provider.RoleUser, Content: "Hi"},
		{Role: provider.RoleAssistant, Content: "Hello!"},
		{Role: provider.RoleUser, Content: "When do shifts start?"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Shifts start at 9am.", answer)

	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "You answer from context.", got.Messages[0].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "When do shifts start?", got.Messages[3].Content)
}

func TestOpenAIProvider_ModelOverride(t *testing.T) {
	var got chatRequest
	srv := chatServer(t, &got, "ok")
	p := newProvider(t, srv.URL, "primary-model")

	_, err := p.Complete(context.Background(), "sys", "question", "other-model")
	require.NoError(t, err)
	assert.Equal(t, "other-model", got.Model)
	assert.Equal(t, "primary-model", p.Model())
}

func TestOpenAIProvider_UnauthorizedIsConfiguration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := newProvider(t, srv.URL, "").Complete(context.Background(), "sys", "q", "")
	assert.ErrorIs(t, err, provider.ErrConfiguration)
}

type modelStub struct {
	errs   map[string]error
	models []string
}

func (m *modelStub) Complete(ctx context.Context, system, user, model string) (string, error) {
	return m.CompleteWithHistory(ctx, system, nil, model)
}

func (m *modelStub) CompleteWithHistory(ctx context.Context, system string, msgs []provider.Message, model string) (string, error) {
	m.models = append(m.models, model)
	if err := m.errs[model]; err != nil {
		return "", err
	}
	return "answer from " + model, nil
}

func TestFallbackProvider(t *testing.T) {
	ctx := context.Background()
	primaryErr := provider.NewError("openai", provider.ErrTimeout, errors.New("slow"))

	t.Run("primary succeeds", func(t *testing.T) {
		stub := &modelStub{}
		answer, err := NewFallbackProvider(stub, "backup", nil).Complete(ctx, "s", "q", "main")
		require.NoError(t, err)
		assert.Equal(t, "answer from main", answer)
		assert.Equal(t, []string{"main"}, stub.models)
	})

	t.Run("falls back on provider error", func(t *testing.T) {
		stub := &modelStub{errs: map[string]error{"main": primaryErr}}
		answer, err := NewFallbackProvider(stub, "backup", nil).Complete(ctx, "s", "q", "main")
		require.NoError(t, err)
		assert.Equal(t, "answer from backup", answer)
		assert.Equal(t, []string{"main", "backup"}, stub.models)
	})

	t.Run("both fail returns primary error", func(t *testing.T) {
		stub := &modelStub{errs: map[string]error{
			"main":   primaryErr,
			"backup": provider.NewError("openai", provider.ErrProvider, errors.New("down")),
		}}
		_, err := NewFallbackProvider(stub, "backup", nil).Complete(ctx, "s", "q", "main")
		assert.ErrorIs(t, err, provider.ErrTimeout)
	})

	t.Run("non-provider errors are not retried", func(t *testing.T) {
		stub := &modelStub{errs: map[string]error{"main": errors.New("bug")}}
		_, err := NewFallbackProvider(stub, "backup", nil).Complete(ctx, "s", "q", "main")
		assert.Error(t, err)
		assert.Equal(t, []string{"main"}, stub.models)
	})
}

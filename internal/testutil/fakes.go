// Package testutil provides deterministic provider fakes for tests.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/safety"
	"github.com/bull/rag-assistant/internal/vector"
)

// Embedder hashes words into a fixed-size bag-of-words vector, so texts
// sharing vocabulary get high cosine similarity. Vectors registered with Set
// override the hashing for an exact text.
type Embedder struct {
	Dim int
	Err error

	mu         sync.Mutex
	fixed      map[string][]float32
	calls      int
	batchCalls int
}

// NewEmbedder creates a hashing embedder of the given dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim, fixed: make(map[string][]float32)}
}

// Set pins the embedding returned for text.
func (e *Embedder) Set(text string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fixed[text] = v
}

func (e *Embedder) vectorFor(text string) []float32 {
	if v, ok := e.fixed[text]; ok {
		return append([]float32(nil), v...)
	}
	v := make([]float32, e.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(e.Dim)]++
	}
	return vector.Normalize(v)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vectorFor(text), nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchCalls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectorFor(t)
	}
	return out, nil
}

func (e *Embedder) Dimensions() int {
	return e.Dim
}

// Calls returns the number of Embed calls.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// BatchCalls returns the number of EmbedBatch calls.
func (e *Embedder) BatchCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batchCalls
}

// LLMCall records one completion request.
type LLMCall struct {
	SystemPrompt string
	Messages     []provider.Message
	Model        string
}

// LLM returns Answer (or the result of Respond, when set) and records calls.
type LLM struct {
	Answer  string
	Err     error
	Respond func(systemPrompt string, messages []provider.Message) (string, error)

	mu    sync.Mutex
	calls []LLMCall
}

func (l *LLM) Complete(ctx context.Context, systemPrompt, userMessage, model string) (string, error) {
	return l.CompleteWithHistory(ctx, systemPrompt, []provider.Message{{Role: provider.RoleUser, Content: userMessage}}, model)
}

func (l *LLM) CompleteWithHistory(ctx context.Context, systemPrompt string, messages []provider.Message, model string) (string, error) {
	l.mu.Lock()
	l.calls = append(l.calls, LLMCall{
		SystemPrompt: systemPrompt,
		Messages:     append([]provider.Message(nil), messages...),
		Model:        model,
	})
	respond := l.Respond
	l.mu.Unlock()

	if respond != nil {
		return respond(systemPrompt, messages)
	}
	if l.Err != nil {
		return "", l.Err
	}
	return l.Answer, nil
}

// Calls returns a copy of the recorded requests.
func (l *LLM) Calls() []LLMCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LLMCall(nil), l.calls...)
}

// Moderator returns Result for every text, or only for texts matching
// FlagIf when it is set (others pass), and counts calls.
type Moderator struct {
	Result safety.ModerationResult
	FlagIf func(text string) bool

	mu    sync.Mutex
	texts []string
}

func (m *Moderator) Check(ctx context.Context, text string) safety.ModerationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if m.FlagIf != nil && !m.FlagIf(text) {
		return safety.ModerationResult{}
	}
	return m.Result
}

// Calls returns the number of Check calls.
func (m *Moderator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

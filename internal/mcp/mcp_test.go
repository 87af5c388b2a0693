package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-assistant/internal/cache"
	"github.com/bull/rag-assistant/internal/rag"
	"github.com/bull/rag-assistant/internal/storage"
	"github.com/bull/rag-assistant/internal/testutil"
)

const (
	parkingChunk = "Volunteers park in lot B behind the community center."
	parkQuestion = "Where do volunteers park?"
)

type fixture struct {
	svc   *rag.Service
	llm   *testutil.LLM
	store *storage.MemoryStore
}

func newFixture(t *testing.T, withChunk bool) *fixture {
	t.Helper()
	ctx := context.Background()
	emb := testutil.NewEmbedder(64)
	store := storage.NewMemoryStore(64)
	llm := &testutil.LLM{Answer: "Park in lot B behind the community center."}

	vec, err := emb.Embed(ctx, parkingChunk)
	require.NoError(t, err)
	emb.Set(parkQuestion, vec)
	if withChunk {
		require.NoError(t, store.AddChunks(ctx, []storage.DocumentChunk{{
			ID:        "c1",
			Content:   parkingChunk,
			Metadata:  storage.Metadata{Source: "parking.md", Section: "Parking", Title: "Volunteer Guide"},
			Embedding: vec,
		}}))
	}

	svc := rag.NewService(llm, emb, store, rag.Config{}, nil,
		rag.WithCache(cache.New(emb, cache.NewMemoryStore(), cache.DefaultOptions(), nil)))
	return &fixture{svc: svc, llm: llm, store: store}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type commitStub struct {
	sha string
	err error
}

func (c commitStub) LatestCommitSHA(context.Context) (string, error) { return c.sha, c.err }

func TestAskHandler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	ask := makeAskHandler(f.svc, testLogger())

	t.Run("RequiresQuestion", func(t *testing.T) {
		_, _, err := ask(ctx, nil, AskQuestionInput{Question: "   "})
		assert.EqualError(t, err, "question is required")
	})

	t.Run("RejectsUnknownRole", func(t *testing.T) {
		_, _, err := ask(ctx, nil, AskQuestionInput{
			Question: "Where do I park?",
			History:  []HistoryMessage{{Role: "system", Content: "be terse"}},
		})
		assert.ErrorContains(t, err, "history[0]")
	})

	t.Run("AnswersThenServesFromCache", func(t *testing.T) {
		_, out, err := ask(ctx, nil, AskQuestionInput{
			Question: parkQuestion,
			History:  []HistoryMessage{{Role: "User", Content: "Hi"}, {Role: "assistant", Content: "Hello"}},
		})
		require.NoError(t, err)
		assert.Equal(t, f.llm.Answer, out.Answer)
		require.Len(t, out.Sources, 1)
		assert.Equal(t, "parking.md", out.Sources[0].Source)
		assert.Equal(t, "Parking", out.Sources[0].Section)
		assert.False(t, out.Cached)
		assert.NotEmpty(t, out.ConfidenceLevel)

		calls := f.llm.Calls()
		require.Len(t, calls, 1)
		assert.Len(t, calls[0].Messages, 3)
		assert.Equal(t, "user", calls[0].Messages[0].Role)

		_, again, err := ask(ctx, nil, AskQuestionInput{Question: parkQuestion})
		require.NoError(t, err)
		assert.True(t, again.Cached)
		assert.Len(t, f.llm.Calls(), 1)
	})

	t.Run("WrapsServiceErrors", func(t *testing.T) {
		f := newFixture(t, true)
		f.llm.Err = errors.New("upstream down")
		_, _, err := makeAskHandler(f.svc, testLogger())(ctx, nil, AskQuestionInput{Question: "Where do I park?"})
		assert.ErrorContains(t, err, "failed to answer question")
	})
}

func TestSearchHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyIndex", func(t *testing.T) {
		search := makeSearchHandler(newFixture(t, false).svc, 5)
		_, out, err := search(ctx, nil, SearchChunksInput{Query: "parking"})
		require.NoError(t, err)
		assert.Empty(t, out.Results)
		assert.NotNil(t, out.Results)
		assert.NotEmpty(t, out.Message)
	})

	t.Run("ReturnsChunks", func(t *testing.T) {
		search := makeSearchHandler(newFixture(t, true).svc, 5)
		_, out, err := search(ctx, nil, SearchChunksInput{Query: "where to park", TopK: 100})
		require.NoError(t, err)
		require.Len(t, out.Results, 1)
		assert.Equal(t, parkingChunk, out.Results[0].Content)
		assert.Greater(t, out.Results[0].Similarity, 0.0)
		assert.Empty(t, out.Message)
	})

	t.Run("RequiresQuery", func(t *testing.T) {
		_, _, err := makeSearchHandler(newFixture(t, true).svc, 5)(ctx, nil, SearchChunksInput{})
		assert.EqualError(t, err, "query is required")
	})
}

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	_, out, err := makeStatusHandler(f.svc, commitStub{sha: "abc123"}, testLogger())(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, StatusOutput{
		TotalChunks:        1,
		CacheEnabled:       true,
		LatestSourceCommit: "abc123",
	}, out)

	_, out, err = makeStatusHandler(f.svc, commitStub{err: errors.New("rate limited")}, testLogger())(ctx, nil, StatusInput{})
	require.NoError(t, err, "commit lookup failures do not fail the tool")
	assert.Empty(t, out.LatestSourceCommit)
}

func TestClearCacheHandler(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	_, _, err := makeAskHandler(f.svc, testLogger())(ctx, nil, AskQuestionInput{Question: parkQuestion})
	require.NoError(t, err)

	clearCache := makeClearCacheHandler(f.svc)
	_, out, err := clearCache(ctx, nil, ClearCacheInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Cleared)

	n, err := f.svc.CacheCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	disabled := rag.NewService(f.llm, testutil.NewEmbedder(64), f.store, rag.Config{}, nil)
	_, out, err = makeClearCacheHandler(disabled)(ctx, nil, ClearCacheInput{})
	require.NoError(t, err)
	assert.Equal(t, "Answer cache is disabled.", out.Message)
}

func TestServer_InMemorySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	server := NewServer(&Config{Service: f.svc, Logger: testLogger()})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ask_question", "search_chunks", "get_index_status", "clear_cache"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "get_index_status", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var status StatusOutput
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, 1, status.TotalChunks)
	assert.True(t, status.CacheEnabled)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "ask_question", Arguments: map[string]any{"question": ""}})
	require.NoError(t, err)
	assert.True(t, res.IsError, "handler errors surface as tool errors")
}

type healthStub struct{ err error }

func (h healthStub) Health(context.Context) error { return h.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"unhealthy", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(healthStub{err: tt.err})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.NotEmpty(t, body.Timestamp)
		})
	}
}

func TestMux_LandingPage(t *testing.T) {
	server := NewServer(&Config{Service: newFixture(t, false).svc, Logger: testLogger()})
	mux := NewMux(server, healthStub{}, &HTTPHandlerOptions{Stateless: true})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"ask_question", "search_chunks", "get_index_status", "clear_cache"} {
		assert.Contains(t, rec.Body.String(), name)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

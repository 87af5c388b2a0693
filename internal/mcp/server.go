package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/rag"
)

// Assistant is the part of rag.Service the tools call.
type Assistant interface {
	Ask(ctx context.Context, question string, history []provider.Message) (*rag.Response, error)
	Retrieve(ctx context.Context, query string, topK int) ([]rag.ChunkWithScore, error)
	ClearCache(ctx context.Context) error
	DocumentCount(ctx context.Context) (int, error)
	CacheCount(ctx context.Context) (int, error)
	KeywordIndexCount() int
	HybridEnabled() bool
	CacheEnabled() bool
	SafetyEnabled() bool
}

// CommitSource reports the newest commit of a remote document source.
type CommitSource interface {
	LatestCommitSHA(ctx context.Context) (string, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	tools  []*mcp.Tool
}

// Config holds server dependencies.
type Config struct {
	Service Assistant
	// Commits is optional.
	Commits CommitSource
	// DefaultTopK applies to search_chunks when the caller gives none.
	DefaultTopK int
	Version     string
	Logger      *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = rag.DefaultTopK
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rag-assistant",
		Version: version,
	}, nil)
	s := &Server{server: server}

	ask := &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question from the indexed documents. Returns the answer, the source chunks used, and a confidence rating. Answers that fail safety or grounding checks come back blocked.",
	}
	mcp.AddTool(server, ask, makeAskHandler(cfg.Service, logger))

	search := &mcp.Tool{
		Name:        "search_chunks",
		Description: "Retrieve the most relevant document chunks for a query without generating an answer.",
	}
	mcp.AddTool(server, search, makeSearchHandler(cfg.Service, topK))

	status := &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of the document index: chunk counts, cache size, and which retrieval and safety features are enabled.",
	}
	mcp.AddTool(server, status, makeStatusHandler(cfg.Service, cfg.Commits, logger))

	clearCache := &mcp.Tool{
		Name:        "clear_cache",
		Description: "Drop every cached answer so the next questions are answered fresh.",
	}
	mcp.AddTool(server, clearCache, makeClearCacheHandler(cfg.Service))

	s.tools = []*mcp.Tool{ask, search, status, clearCache}
	return s
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Tools returns the registered tools in registration order.
func (s *Server) Tools() []*mcp.Tool {
	return s.tools
}

package mcp

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// HTTPHandlerOptions configures the HTTP transport behavior.
type HTTPHandlerOptions struct {
	// Stateless disables session management. None of the tools call back
	// into the client. Default: false (stateful).
	Stateless bool
}

// NewHTTPHandler serves the MCP server over Streamable HTTP. The handler can
// be mounted on any path; NewMux mounts it at "/mcp".
//
// Example:
//
//	mux := http.NewServeMux()
//	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
//	http.ListenAndServe(":8080", mux)
func NewHTTPHandler(server *Server, opts *HTTPHandlerOptions) http.Handler {
	if opts == nil {
		opts = &HTTPHandlerOptions{}
	}

	sdkOpts := &mcp.StreamableHTTPOptions{
		Stateless: opts.Stateless,
	}

	// Every session shares the one server and its registered tools
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server.MCPServer()
	}, sdkOpts)
}

// NewMux routes /mcp to the MCP handler, /health to the health check and /
// to the landing page.
func NewMux(server *Server, health HealthChecker, opts *HTTPHandlerOptions) *http.ServeMux {
	mux := http.NewServeMux()

	// MCP over Streamable HTTP for remote clients
	mux.Handle("/mcp", NewHTTPHandler(server, opts))

	// Vector store connectivity for load balancers and local testing
	mux.HandleFunc("/health", NewHealthHandler(health))

	// Landing page listing the available tools
	mux.HandleFunc("/", NewLandingHandler(server))
	return mux
}

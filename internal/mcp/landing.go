package mcp

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>RAG Assistant MCP Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #0f172a; color: #e2e8f0; max-width: 640px; margin: 3rem auto; padding: 0 1rem; }
  h1 { color: #f8fafc; }
  code { font-family: "SF Mono", Menlo, monospace; color: #a5b4fc; }
  li { margin-bottom: 0.75rem; }
  .muted { color: #94a3b8; }
</style>
</head>
<body>
<h1>RAG Assistant MCP Server</h1>
<p class="muted">Answers questions from the indexed documents, with sources and a confidence rating.</p>
<p>MCP endpoint: <code>/mcp</code> (Streamable HTTP). Health: <a href="/health"><code>/health</code></a>.</p>
<h2>Tools</h2>
<ul>
{{range .}}  <li><code>{{.Name}}</code><br><span class="muted">{{.Description}}</span></li>
{{end}}</ul>
</body>
</html>
`))

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler(server *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = landingTemplate.Execute(w, server.Tools())
	}
}

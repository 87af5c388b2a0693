// Package mcp exposes the question-answering service as MCP tools.
package mcp

// HistoryMessage is one prior conversation turn.
type HistoryMessage struct {
	Role    string `json:"role" jsonschema:"user or assistant"`
	Content string `json:"content" jsonschema:"the message text"`
}

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	// Question is answered from the indexed documents.
	Question string `json:"question" jsonschema:"the question to answer from the indexed documents"`
	// History carries earlier turns of the conversation, oldest first.
	History []HistoryMessage `json:"history,omitempty" jsonschema:"earlier conversation turns, oldest first"`
}

// AskQuestionOutput is the answer plus how much to trust it.
type AskQuestionOutput struct {
	Answer          string        `json:"answer"`
	Sources         []ChunkResult `json:"sources"`
	ConfidenceLevel string        `json:"confidence_level"`
	ConfidenceScore float64       `json:"confidence_score"`
	Blocked         bool          `json:"blocked"`
	BlockedReason   string        `json:"blocked_reason,omitempty"`
	Cached          bool          `json:"cached"`
}

// SearchChunksInput defines the input parameters for the search_chunks tool.
type SearchChunksInput struct {
	Query string `json:"query" jsonschema:"the search query"`
	// TopK defaults to the service's configured value.
	TopK int `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return (1-20)"`
}

// SearchChunksOutput contains the retrieved chunks, best first.
type SearchChunksOutput struct {
	Results []ChunkResult `json:"results"`
	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// ChunkResult is one retrieved chunk.
type ChunkResult struct {
	Source  string `json:"source"`
	Section string `json:"section,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	// Score is the ranking score; with hybrid retrieval it is the fused
	// rank value, not a similarity.
	Score float64 `json:"score"`
	// Similarity is the cosine similarity to the query.
	Similarity float64 `json:"similarity"`
}

// StatusInput defines the input parameters for the get_index_status tool.
type StatusInput struct{}

// StatusOutput reports what is indexed and which features are on.
type StatusOutput struct {
	TotalChunks      int  `json:"total_chunks"`
	KeywordIndexDocs int  `json:"keyword_index_docs"`
	CachedAnswers    int  `json:"cached_answers"`
	HybridEnabled    bool `json:"hybrid_enabled"`
	CacheEnabled     bool `json:"cache_enabled"`
	SafetyEnabled    bool `json:"safety_enabled"`
	// LatestSourceCommit is the newest commit of the GitHub document source,
	// when one is configured and reachable.
	LatestSourceCommit string `json:"latest_source_commit,omitempty"`
}

// ClearCacheInput defines the input parameters for the clear_cache tool.
type ClearCacheInput struct{}

// ClearCacheOutput reports how many cached answers were dropped.
type ClearCacheOutput struct {
	Cleared int    `json:"cleared"`
	Message string `json:"message"`
}

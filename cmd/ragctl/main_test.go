package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bull/rag-assistant/internal/confidence"
	"github.com/bull/rag-assistant/internal/eval"
	"github.com/bull/rag-assistant/internal/indexer"
	"github.com/bull/rag-assistant/internal/rag"
	"github.com/bull/rag-assistant/internal/safety"
)

func TestWriteIndexSummary(t *testing.T) {
	var buf bytes.Buffer
	writeIndexSummary(&buf, indexer.Summary{
		TotalDocs:      2,
		SuccessfulDocs: 1,
		TotalChunks:    4,
		FailedDocs:     []indexer.FailedDoc{{Source: "broken.md", Reason: "Document has no content"}},
	}, "abc1234", 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Documents: 1/2")
	assert.Contains(t, out, "Chunks: 4")
	assert.Contains(t, out, "Commit: abc1234")
	assert.Contains(t, out, "  - broken.md: Document has no content")
}

func TestWriteAnswer(t *testing.T) {
	var buf bytes.Buffer
	writeAnswer(&buf, &rag.Response{
		Answer:          "Check in at the front desk.",
		ConfidenceLevel: confidence.Medium,
		ConfidenceScore: 0.72,
		Cached:          true,
		ChunksUsed:      []rag.ChunkWithScore{{Source: "checkin.md", Section: "Check-in", Similarity: 0.91}},
	})

	out := buf.String()
	assert.Contains(t, out, "Check in at the front desk.")
	assert.Contains(t, out, "Confidence: medium (0.72) [cached]")
	assert.Contains(t, out, "1. checkin.md > Check-in (similarity 0.91)")
	assert.NotContains(t, out, "Blocked")

	buf.Reset()
	writeAnswer(&buf, &rag.Response{
		Answer:          safety.BlockedMessage,
		Blocked:         true,
		BlockedReason:   safety.ViolationInjection,
		ConfidenceLevel: confidence.Low,
	})
	assert.Contains(t, buf.String(), "Blocked: prompt_injection")
	assert.NotContains(t, buf.String(), "Sources:")
}

func TestWriteEvalSummary(t *testing.T) {
	var buf bytes.Buffer
	writeEvalSummary(&buf, eval.Summarize([]eval.Result{
		{ExampleID: "ok", Passed: true},
		{ExampleID: "missing", Answer: eval.AnswerMetrics{KeywordsMissing: []string{"badge"}}},
		{ExampleID: "errored", Error: "timeout"},
	}, nil))

	out := buf.String()
	assert.Contains(t, out, "Examples: 1/3 passed (33.3%)")
	assert.Contains(t, out, "  - missing: recall 0.00, missing keywords [badge]")
	assert.Contains(t, out, "  - errored: timeout")
	assert.NotContains(t, out, "- ok")
}

func TestShortSHA(t *testing.T) {
	assert.Equal(t, "abcdef1", shortSHA("abcdef1234567890"))
	assert.Equal(t, "abc", shortSHA("abc"))
}

package rag

import (
	"fmt"
	"strings"
)

const systemPromptTemplate = `You are a helpful assistant that answers questions from an indexed document collection.
You answer questions based on the provided context from those documents.

Instructions:
1. Answer ONLY based on the provided context
2. If the context doesn't contain the answer, say "I don't have information about that in the indexed documents."
3. Be friendly, concise, and accurate
4. Quote specific policies or procedures when relevant
5. If the question is unclear, ask for clarification

Context from documents:
%s`

// FallbackSystemPrompt is used when nothing has been indexed yet.
const FallbackSystemPrompt = `You are a helpful assistant for an indexed document collection.

Note: No documents have been indexed yet. You can only provide general information.
For specific policies and procedures, ask an administrator to index the documents.

Be friendly and helpful, but remind the user that you don't have access to their specific documents.`

const noContext = "[No relevant documents found]"

// BuildSystemPrompt lists each chunk under its source, in rank order.
func BuildSystemPrompt(chunks []ChunkWithScore) string {
	if len(chunks) == 0 {
		return fmt.Sprintf(systemPromptTemplate, noContext)
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, c.Source, c.Content)
	}
	return fmt.Sprintf(systemPromptTemplate, strings.Join(parts, "\n\n---\n\n"))
}

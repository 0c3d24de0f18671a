package rag

import (
	"strings"

	"github.com/ziadkadry99/siterag/internal/knowledge"
)

const promptTemplate = `Use the following CONTEXT to answer the QUESTION at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

CONTEXT: {context}
QUESTION: {question}
`

// JoinContext concatenates document contexts, each followed by a newline.
func JoinContext(docs []knowledge.Document) string {
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.Context)
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildPrompt fills the answer template with the retrieved documents and
// the user's question.
func BuildPrompt(docs []knowledge.Document, question string) string {
	return strings.NewReplacer(
		"{context}", JoinContext(docs),
		"{question}", question,
	).Replace(promptTemplate)
}

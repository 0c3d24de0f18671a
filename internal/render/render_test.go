package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	r := New("")

	out, err := r.HTML("# Answer\n\nUse **pip** to install.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Answer</h1>")
	assert.Contains(t, out, "<strong>pip</strong>")
	assert.Contains(t, out, "<table>")
}

func TestHTMLHighlightsCode(t *testing.T) {
	out, err := New("monokai").HTML("```go\nfunc main() {}\n```\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<pre")
	assert.Contains(t, out, "func")
	assert.Contains(t, out, "style=")
}

func TestHTMLDropsRawHTML(t *testing.T) {
	out, err := New("").HTML("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

// Package render turns generated markdown answers into HTML.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to HTML. Raw HTML in the input is dropped
// since answers are model output.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a Renderer using the given chroma style for code blocks.
func New(style string) *Renderer {
	if style == "" {
		style = "github"
	}
	return &Renderer{md: goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)}
}

// HTML renders src.
func (r *Renderer) HTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// FuncEmbedder adapts a single-text chromem.EmbeddingFunc to Embedder.
type FuncEmbedder struct {
	fn   chromem.EmbeddingFunc
	name string
	dims int
}

// FromChromemFunc wraps fn. dims is informational only.
func FromChromemFunc(fn chromem.EmbeddingFunc, name string, dims int) *FuncEmbedder {
	return &FuncEmbedder{fn: fn, name: name, dims: dims}
}

// NewOllamaEmbedder embeds through a local Ollama instance. baseURL is the
// Ollama host (e.g. http://localhost:11434); empty uses the default.
func NewOllamaEmbedder(model string, dims int, baseURL string) *FuncEmbedder {
	api := ""
	if baseURL != "" {
		api = baseURL + "/api"
	}
	return FromChromemFunc(chromem.NewEmbeddingFuncOllama(model, api), "ollama/"+model, dims)
}

func (e *FuncEmbedder) Name() string    { return e.name }
func (e *FuncEmbedder) Dimensions() int { return e.dims }

func (e *FuncEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.fn(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%s embed text %d: %w", e.name, i, err)
		}
		out[i] = Normalize(vec)
	}
	return out, nil
}

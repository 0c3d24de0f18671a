package embeddings

import "context"

// HashEmbedder produces deterministic vectors from character positions.
// Texts sharing characters land close together. It needs no network and is
// used for offline runs and tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder with the given dimension count.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Name() string    { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	i := 0
	for _, ch := range text {
		vec[(int(ch)+i)%h.dims] += 1.0
		i++
	}
	return Normalize(vec)
}

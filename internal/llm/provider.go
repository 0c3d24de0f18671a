package llm

import (
	"context"
	"fmt"
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// Generator turns a single prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationError wraps any failure of the text-generation call.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProviderGenerator sends each prompt as one user message to a Provider.
type ProviderGenerator struct {
	provider    Provider
	model       string
	maxTokens   int
	temperature float64
	onUsage     func(*CompletionResponse)
}

// GeneratorOption configures a ProviderGenerator.
type GeneratorOption func(*ProviderGenerator)

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *ProviderGenerator) { g.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GeneratorOption {
	return func(g *ProviderGenerator) { g.temperature = t }
}

// WithUsageHook is called with every successful response.
func WithUsageHook(fn func(*CompletionResponse)) GeneratorOption {
	return func(g *ProviderGenerator) { g.onUsage = fn }
}

// NewGenerator builds a Generator over p. model may be empty to use the
// provider's default.
func NewGenerator(p Provider, model string, opts ...GeneratorOption) *ProviderGenerator {
	g := &ProviderGenerator{provider: p, model: model, maxTokens: 1024}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the model's answer, or a *GenerationError.
func (g *ProviderGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.provider.Complete(ctx, CompletionRequest{
		Model:       g.model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", &GenerationError{Provider: g.provider.Name(), Err: err}
	}
	if g.onUsage != nil {
		g.onUsage(resp)
	}
	return resp.Content, nil
}

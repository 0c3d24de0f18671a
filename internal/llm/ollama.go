package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultOllamaHost is used when no host is configured.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaProvider implements Provider using the Ollama chat API.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *resty.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(baseURL string, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaHost
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(5 * time.Minute).
			SetHeader("Content-Type", "application/json"),
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Model           string        `json:"model"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, ollamaMessage{Role: string(msg.Role), Content: msg.Content})
	}

	var out ollamaChatResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(ollamaChatRequest{
			Model:    model,
			Messages: messages,
			Options:  ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode(), out.Error)
		}
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return &CompletionResponse{
		Content:      out.Message.Content,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		Model:        out.Model,
		FinishReason: out.DoneReason,
	}, nil
}

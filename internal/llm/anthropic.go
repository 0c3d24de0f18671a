package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const anthropicAPIBaseURL = "https://api.anthropic.com/v1"

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	model  string
	client *resty.Client
}

// NewAnthropicProvider creates a new Anthropic provider. An empty baseURL
// uses the public endpoint.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = anthropicAPIBaseURL
	}
	return &AnthropicProvider{
		model: model,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(2 * time.Minute).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-api-key", apiKey).
			SetHeader("anthropic-version", "2023-06-01"),
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	system, turns := splitSystem(req.Messages)
	messages := make([]anthropicMessage, 0, len(turns))
	for _, msg := range turns {
		messages = append(messages, anthropicMessage{Role: string(msg.Role), Content: msg.Content})
	}

	var apiResp anthropicResponse
	var apiErr anthropicErrorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(anthropicRequest{
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: req.Temperature,
			System:      system,
			Messages:    messages,
		}).
		SetResult(&apiResp).
		SetError(&apiErr).
		Post("/messages")
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("anthropic API error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("anthropic returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &CompletionResponse{
		Content:      sb.String(),
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
		Model:        apiResp.Model,
		FinishReason: apiResp.StopReason,
	}, nil
}

package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const googleAPIBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleProvider implements Provider using the Gemini generateContent API.
type GoogleProvider struct {
	apiKey string
	model  string
	client *resty.Client
}

// NewGoogleProvider creates a new Google Gemini provider. An empty baseURL
// uses the public endpoint.
func NewGoogleProvider(apiKey, model, baseURL string) *GoogleProvider {
	if baseURL == "" {
		baseURL = googleAPIBaseURL
	}
	return &GoogleProvider{
		apiKey: apiKey,
		model:  model,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(2 * time.Minute).
			SetHeader("Content-Type", "application/json"),
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	system, turns := splitSystem(req.Messages)
	contents := make([]geminiContent, 0, len(turns))
	for _, msg := range turns {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}
	if len(contents) == 0 {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: ""}}})
	}

	apiReq := geminiRequest{
		Contents:         contents,
		GenerationConfig: &geminiGenerationConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens},
	}
	if system != "" {
		apiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	var apiResp geminiResponse
	var apiErr geminiErrorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("key", p.apiKey).
		SetBody(apiReq).
		SetResult(&apiResp).
		SetError(&apiErr).
		Post(fmt.Sprintf("/models/%s:generateContent", model))
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("gemini API error (%s): %s", apiErr.Error.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode(), resp.String())
	}

	out := &CompletionResponse{Model: model}
	if len(apiResp.Candidates) > 0 {
		c := apiResp.Candidates[0]
		if c.Content != nil {
			var sb strings.Builder
			for _, part := range c.Content.Parts {
				sb.WriteString(part.Text)
			}
			out.Content = sb.String()
		}
		out.FinishReason = c.FinishReason
	}
	if apiResp.UsageMetadata != nil {
		out.InputTokens = apiResp.UsageMetadata.PromptTokenCount
		out.OutputTokens = apiResp.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}

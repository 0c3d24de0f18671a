package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	googleMaxBatch       = 100
)

// GoogleModel represents a supported Google embedding model.
type GoogleModel string

const (
	ModelGeminiEmbedding001 GoogleModel = "gemini-embedding-001"
	ModelTextEmbedding004   GoogleModel = "text-embedding-004"
)

func (m GoogleModel) dimensions() int {
	switch m {
	case ModelTextEmbedding004:
		return 768
	default:
		return 3072
	}
}

// GoogleEmbedder generates embeddings using the Gemini batchEmbedContents API.
type GoogleEmbedder struct {
	apiKey string
	model  GoogleModel
	client *resty.Client
}

// NewGoogleEmbedder creates a new Google embedder. An empty baseURL uses
// the public endpoint.
func NewGoogleEmbedder(apiKey string, model GoogleModel, baseURL string) *GoogleEmbedder {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	if model == "" {
		model = ModelTextEmbedding004
	}
	return &GoogleEmbedder{
		apiKey: apiKey,
		model:  model,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(time.Minute).
			SetHeader("Content-Type", "application/json"),
	}
}

func (e *GoogleEmbedder) Name() string {
	return string(e.model)
}

func (e *GoogleEmbedder) Dimensions() int {
	return e.model.dimensions()
}

type googleBatchRequest struct {
	Requests []googleEmbedRequest `json:"requests"`
}

type googleEmbedRequest struct {
	Model   string        `json:"model"`
	Content googleContent `json:"content"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleBatchResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (e *GoogleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += googleMaxBatch {
		batch := texts[i:min(i+googleMaxBatch, len(texts))]
		vecs, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *GoogleEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := googleBatchRequest{Requests: make([]googleEmbedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = googleEmbedRequest{
			Model:   "models/" + string(e.model),
			Content: googleContent{Parts: []googlePart{{Text: t}}},
		}
	}

	var result googleBatchResponse
	var apiErr googleErrorResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParam("key", e.apiKey).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/models/%s:batchEmbedContents", e.model))
	if err != nil {
		return nil, fmt.Errorf("google embed request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("google embed API error (%s): %s", apiErr.Error.Status, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("google embed API error (status %d): %s", resp.StatusCode(), resp.String())
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("google returned %d embeddings, expected %d", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if len(emb.Values) == 0 {
			return nil, fmt.Errorf("google returned empty embedding for text %d", i)
		}
		out[i] = Normalize(emb.Values)
	}
	return out, nil
}

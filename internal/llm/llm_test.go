package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Errs     []error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "gpt-4o-mini",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return nil, err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func TestGenerator_SendsPromptAsUserMessage(t *testing.T) {
	mock := NewMockProvider("test")
	var usage *CompletionResponse
	g := NewGenerator(mock, "model-x", WithMaxTokens(256), WithTemperature(0.2), WithUsageHook(func(r *CompletionResponse) { usage = r }))

	out, err := g.Generate(context.Background(), "what is up?")
	require.NoError(t, err)
	assert.Equal(t, "mock response", out)

	require.Equal(t, 1, mock.CallCount())
	req := mock.Calls[0]
	assert.Equal(t, "model-x", req.Model)
	assert.Equal(t, 256, req.MaxTokens)
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "what is up?"}}, req.Messages)
	require.NotNil(t, usage)
	assert.Equal(t, 20, usage.OutputTokens)
}

func TestGenerator_WrapsFailures(t *testing.T) {
	mock := NewMockProvider("test")
	cause := errors.New("quota exceeded")
	mock.Errs = []error{cause}

	_, err := NewGenerator(mock, "").Generate(context.Background(), "q")
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "test", genErr.Provider)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestWithRetry(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		mock := NewMockProvider("test")
		mock.Errs = []error{errors.New("503"), errors.New("503")}

		p := WithRetry(mock, 3, time.Millisecond)
		resp, err := p.Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, "mock response", resp.Content)
		assert.Equal(t, 3, mock.CallCount())
		assert.Equal(t, "test", p.Name())
	})

	t.Run("cancellation is not retried", func(t *testing.T) {
		mock := NewMockProvider("test")
		mock.Errs = []error{context.Canceled}

		_, err := WithRetry(mock, 3, time.Millisecond).Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, mock.CallCount())
	})

	t.Run("disabled", func(t *testing.T) {
		mock := NewMockProvider("test")
		assert.Same(t, mock, WithRetry(mock, 0, 0))
	})
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	for _, p := range []string{"anthropic", "openai", "google"} {
		_, err := NewProvider(p, "some-model", "")
		assert.ErrorIs(t, err, ErrMissingAPIKey, "provider %q", p)
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	_, err := NewProvider("unknown", "some-model", "")
	assert.Error(t, err)
}

func TestFactoryOllamaHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	p, err := NewProvider("ollama", "llama3", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, p.(*OllamaProvider).baseURL)

	t.Setenv("OLLAMA_HOST", "http://env-host:11434")
	p, err = NewProvider("ollama", "llama3", "")
	require.NoError(t, err)
	assert.Equal(t, "http://env-host:11434", p.(*OllamaProvider).baseURL)

	p, err = NewProvider("ollama", "llama3", "http://configured:11434")
	require.NoError(t, err)
	assert.Equal(t, "http://configured:11434", p.(*OllamaProvider).baseURL)
}

func TestFactoryCreatesKeyedProviders(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "k")
	t.Setenv("OPENAI_API_KEY", "k")
	t.Setenv("GOOGLE_API_KEY", "k")
	for _, name := range []string{"anthropic", "openai", "google"} {
		p, err := NewProvider(name, "m", "")
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("k")
	cfg.BaseURL = srv.URL + "/v1"
	p := NewOpenAIProviderWithConfig(cfg, "gpt-4o-mini")

	resp, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 5, resp.InputTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestGoogleProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be brief", req.SystemInstruction.Parts[0].Text)
		assert.Equal(t, "user", req.Contents[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello"},{"text":" world"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2}}`))
	}))
	defer srv.Close()

	p := NewGoogleProvider("k", "gemini-2.0-flash", srv.URL)
	resp, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, 3, resp.InputTokens)
	assert.Equal(t, 2, resp.OutputTokens)
}

func TestGoogleProvider_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	_, err := NewGoogleProvider("k", "gemini-2.0-flash", srv.URL).Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESOURCE_EXHAUSTED")
}

func TestAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"answer"}],"model":"claude-haiku-4-5-20251001",
			"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":1}}`))
	}))
	defer srv.Close()

	resp, err := NewAnthropicProvider("k", "claude-haiku-4-5-20251001", srv.URL).
		Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"local answer"},"model":"llama3","done_reason":"stop","prompt_eval_count":7,"eval_count":3}`))
	}))
	defer srv.Close()

	resp, err := NewOllamaProvider(srv.URL, "llama3").Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Content)
	assert.Equal(t, 7, resp.InputTokens)
}

func TestCost(t *testing.T) {
	r := &CompletionResponse{Model: "claude-sonnet-4-5-20250929", InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.0, r.Cost(), 0.01)

	assert.Zero(t, (&CompletionResponse{Model: "llama3", InputTokens: 100}).Cost())
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hi", 1},
		{"hello world!!", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), tt.text)
	}
}

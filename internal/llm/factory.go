package llm

import (
	"errors"
	"fmt"
	"os"
)

// ErrMissingAPIKey is returned by NewProvider when a hosted provider's key
// is not set in the environment.
var ErrMissingAPIKey = errors.New("API key environment variable is not set")

// apiKeyEnv names the key variable of each hosted provider.
var apiKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// NewProvider creates the provider behind a Generator.
// Supported provider types: "anthropic", "openai", "google", "ollama".
// ollamaHost falls back to $OLLAMA_HOST and then DefaultOllamaHost.
func NewProvider(providerType, model, ollamaHost string) (Provider, error) {
	if providerType == "ollama" {
		host := ollamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(host, model), nil
	}

	env, ok := apiKeyEnv[providerType]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
	apiKey := os.Getenv(env)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", env, ErrMissingAPIKey)
	}

	switch providerType {
	case "anthropic":
		return NewAnthropicProvider(apiKey, model, ""), nil
	case "openai":
		return NewOpenAIProvider(apiKey, model), nil
	default:
		return NewGoogleProvider(apiKey, model, ""), nil
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to siterag! Let's configure your knowledge base.")
	fmt.Println()

	// 1. Provider selection.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider for answers",
		Items: []string{"google", "openai", "anthropic", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	// 2. Quality tier.
	qualityPrompt := promptui.Select{
		Label: "Select quality tier",
		Items: []string{
			"lite   - fast and cheap",
			"normal - balanced",
			"max    - highest quality",
		},
		CursorPos: 1,
	}
	qualityIdx, _, err := qualityPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("quality selection: %w", err)
	}
	tiers := []QualityTier{QualityLite, QualityNormal, QualityMax}
	quality := tiers[qualityIdx]

	preset := GetPreset(provider, quality)

	// 3. Sitemap to ingest by default.
	sitemapPrompt := promptui.Prompt{
		Label:    "Sitemap URL (leave blank to pass it on each ingest)",
		Validate: validateOptionalURL,
	}
	sitemapURL, err := sitemapPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("sitemap url: %w", err)
	}

	// 4. Snapshot backend.
	backendPrompt := promptui.Select{
		Label: "Where should snapshots be stored",
		Items: []string{string(SnapshotFile), string(SnapshotSQLite)},
	}
	_, backend, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("snapshot backend: %w", err)
	}

	// 5. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory",
		Default: ".siterag",
	}
	dataDir, err := dataPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	// 6. Optional URL filters.
	excludePrompt := promptui.Prompt{
		Label: "Exclude URL path patterns (comma-separated globs, blank for none)",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}

	// Build the config.
	cfg := DefaultConfig()
	cfg.Provider = provider
	cfg.Model = preset.Model
	cfg.EmbeddingProvider = embeddingProviderFor(provider)
	cfg.EmbeddingModel = preset.EmbeddingModel
	cfg.Quality = quality
	cfg.SitemapURL = strings.TrimSpace(sitemapURL)
	cfg.DataDir = dataDir
	cfg.Snapshot.Backend = SnapshotBackend(backend)
	cfg.Crawl.Exclude = splitAndTrim(excludeStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Check for API keys.
	for _, p := range []ProviderType{provider, cfg.EmbeddingProvider} {
		if envVar := APIKeyEnvVar(p); envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment before running siterag.\n", envVar)
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func validateOptionalURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

// embeddingProviderFor returns the default embedding provider for a given
// LLM provider. Anthropic has no embedding API, so OpenAI is used with it.
func embeddingProviderFor(p ProviderType) ProviderType {
	switch p {
	case ProviderOllama, ProviderGoogle, ProviderOpenAI:
		return p
	default:
		return ProviderOpenAI
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}

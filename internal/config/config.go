package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".siterag.yml"

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: SITERAG_CRAWL__CONCURRENCY sets crawl.concurrency.
const EnvPrefix = "SITERAG_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (SITERAG_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: SITERAG_PROVIDER -> provider, etc.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized generation provider values.
var validProviders = map[ProviderType]bool{
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
	ProviderGoogle:    true,
	ProviderOllama:    true,
}

// validEmbeddingProviders is the set of providers that can embed text.
var validEmbeddingProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderGoogle: true,
	ProviderOllama: true,
	ProviderHash:   true,
}

// validQualityTiers is the set of recognized quality tier values.
var validQualityTiers = map[QualityTier]bool{
	QualityLite:   true,
	QualityNormal: true,
	QualityMax:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of anthropic, openai, google, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.EmbeddingProvider != "" && !validEmbeddingProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be one of openai, google, ollama, hash", c.EmbeddingProvider)
	}

	if c.Quality != "" && !validQualityTiers[c.Quality] {
		return fmt.Errorf("invalid quality %q: must be one of lite, normal, max", c.Quality)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	if c.Crawl.Concurrency < 0 {
		return fmt.Errorf("crawl.concurrency must be non-negative")
	}
	if c.Crawl.Timeout < 0 || c.Crawl.Retries < 0 || c.Crawl.MaxSitemapDepth < 0 {
		return fmt.Errorf("crawl.timeout, crawl.retries and crawl.max_sitemap_depth must be non-negative")
	}
	for _, p := range append(append([]string{}, c.Crawl.Include...), c.Crawl.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid crawl pattern %q", p)
		}
	}

	if c.Index.DefaultK < 0 {
		return fmt.Errorf("index.default_k must be non-negative")
	}
	if c.Index.MaxContextChars < 0 {
		return fmt.Errorf("index.max_context_chars must be non-negative")
	}
	if c.Index.EmbedTimeout < 0 || c.Index.EmbedRetries < 0 || c.Index.QueryCacheSize < 0 {
		return fmt.Errorf("index.embed_timeout, index.embed_retries and index.query_cache_size must be non-negative")
	}

	if c.Generation.MaxTokens < 0 || c.Generation.Retries < 0 {
		return fmt.Errorf("generation.max_tokens and generation.retries must be non-negative")
	}

	switch c.Snapshot.Backend {
	case SnapshotFile, SnapshotSQLite:
	default:
		return fmt.Errorf("invalid snapshot.backend %q: must be file or sqlite", c.Snapshot.Backend)
	}

	return nil
}

// DBPath is the SQLite database holding run history and sqlite snapshots.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "siterag.db")
}

// SnapshotPath is the snapshot file used by the file backend.
func (c *Config) SnapshotPath() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	return filepath.Join(c.DataDir, "knowledge.snapshot")
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

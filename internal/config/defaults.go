package config

import "time"

// QualityPreset describes the models to use for a given quality tier.
type QualityPreset struct {
	Model          string
	EmbeddingModel string
}

// qualityPresets maps each provider+quality combination to its model choices.
var qualityPresets = map[ProviderType]map[QualityTier]QualityPreset{
	ProviderAnthropic: {
		QualityLite:   {Model: "claude-haiku-4-5-20251001", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "claude-sonnet-4-5-20250929", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderOpenAI: {
		QualityLite:   {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
		QualityNormal: {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-small"},
		QualityMax:    {Model: "gpt-4o", EmbeddingModel: "text-embedding-3-large"},
	},
	ProviderGoogle: {
		QualityLite:   {Model: "gemini-2.0-flash", EmbeddingModel: "text-embedding-004"},
		QualityNormal: {Model: "gemini-2.0-flash", EmbeddingModel: "text-embedding-004"},
		QualityMax:    {Model: "gemini-2.5-pro", EmbeddingModel: "text-embedding-004"},
	},
	ProviderOllama: {
		QualityLite:   {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityNormal: {Model: "llama3", EmbeddingModel: "nomic-embed-text"},
		QualityMax:    {Model: "llama3:70b", EmbeddingModel: "nomic-embed-text"},
	},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderGoogle,
		Model:             "gemini-2.0-flash",
		EmbeddingProvider: ProviderGoogle,
		EmbeddingModel:    "text-embedding-004",
		Quality:           QualityNormal,
		DataDir:           ".siterag",
		Server: ServerConfig{
			Port:           8000,
			RequestTimeout: 60 * time.Second,
		},
		Crawl: CrawlConfig{
			Concurrency:     5,
			Timeout:         10 * time.Second,
			Retries:         2,
			UserAgent:       "siterag/1.0",
			MaxSitemapDepth: 5,
		},
		Index: IndexConfig{
			DefaultK:        3,
			IncludeMetadata: true,
			EmbedTimeout:    2 * time.Minute,
			EmbedRetries:    3,
			QueryCacheSize:  512,
		},
		Generation: GenerationConfig{
			MaxTokens: 1024,
			Retries:   2,
		},
		Snapshot: SnapshotConfig{
			Backend: SnapshotFile,
		},
	}
}

// GetPreset returns the quality preset for the given provider and tier.
// Returns the Normal Google preset if the combination is not found.
func GetPreset(provider ProviderType, tier QualityTier) QualityPreset {
	if tiers, ok := qualityPresets[provider]; ok {
		if preset, ok := tiers[tier]; ok {
			return preset
		}
	}
	return qualityPresets[ProviderGoogle][QualityNormal]
}

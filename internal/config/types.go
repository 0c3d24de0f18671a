package config

import "time"

// QualityTier controls the model selection and trade-off between speed/cost and quality.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOpenAI    ProviderType = "openai"
	ProviderGoogle    ProviderType = "google"
	ProviderOllama    ProviderType = "ollama"
	// ProviderHash embeds offline with a deterministic hash. Only valid as
	// an embedding provider.
	ProviderHash ProviderType = "hash"
)

// SnapshotBackend selects where knowledge base snapshots are kept.
type SnapshotBackend string

const (
	SnapshotFile   SnapshotBackend = "file"
	SnapshotSQLite SnapshotBackend = "sqlite"
)

// Config is the top-level siterag configuration, corresponding to .siterag.yml.
type Config struct {
	Provider          ProviderType     `yaml:"provider" koanf:"provider"`
	Model             string           `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType     `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string           `yaml:"embedding_model" koanf:"embedding_model"`
	Quality           QualityTier      `yaml:"quality" koanf:"quality"`
	OllamaHost        string           `yaml:"ollama_host,omitempty" koanf:"ollama_host"`
	SitemapURL        string           `yaml:"sitemap_url,omitempty" koanf:"sitemap_url"`
	DataDir           string           `yaml:"data_dir" koanf:"data_dir"`
	Server            ServerConfig     `yaml:"server" koanf:"server"`
	Crawl             CrawlConfig      `yaml:"crawl" koanf:"crawl"`
	Index             IndexConfig      `yaml:"index" koanf:"index"`
	Generation        GenerationConfig `yaml:"generation" koanf:"generation"`
	Snapshot          SnapshotConfig   `yaml:"snapshot" koanf:"snapshot"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" koanf:"port"`
	AllowAllOrigins bool          `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
}

// CrawlConfig controls sitemap resolution and page fetching. Include and
// Exclude are doublestar globs matched against URL paths.
type CrawlConfig struct {
	Concurrency     int           `yaml:"concurrency" koanf:"concurrency"`
	Timeout         time.Duration `yaml:"timeout" koanf:"timeout"`
	Retries         int           `yaml:"retries" koanf:"retries"`
	UserAgent       string        `yaml:"user_agent" koanf:"user_agent"`
	MaxSitemapDepth int           `yaml:"max_sitemap_depth" koanf:"max_sitemap_depth"`
	Include         []string      `yaml:"include,omitempty" koanf:"include"`
	Exclude         []string      `yaml:"exclude,omitempty" koanf:"exclude"`
}

// IndexConfig controls chunking, embedding and retrieval.
type IndexConfig struct {
	DefaultK        int           `yaml:"default_k" koanf:"default_k"`
	MaxContextChars int           `yaml:"max_context_chars" koanf:"max_context_chars"`
	IncludeMetadata bool          `yaml:"include_metadata" koanf:"include_metadata"`
	EmbedTimeout    time.Duration `yaml:"embed_timeout" koanf:"embed_timeout"`
	EmbedRetries    int           `yaml:"embed_retries" koanf:"embed_retries"`
	QueryCacheSize  int           `yaml:"query_cache_size" koanf:"query_cache_size"`
}

// GenerationConfig tunes answer generation.
type GenerationConfig struct {
	MaxTokens   int     `yaml:"max_tokens" koanf:"max_tokens"`
	Temperature float64 `yaml:"temperature" koanf:"temperature"`
	Retries     int     `yaml:"retries" koanf:"retries"`
}

// SnapshotConfig controls knowledge base persistence.
type SnapshotConfig struct {
	Backend     SnapshotBackend `yaml:"backend" koanf:"backend"`
	Path        string          `yaml:"path,omitempty" koanf:"path"`
	LoadOnStart bool            `yaml:"load_on_start" koanf:"load_on_start"`
}

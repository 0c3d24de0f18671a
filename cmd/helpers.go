package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ziadkadry99/siterag/internal/chunk"
	"github.com/ziadkadry99/siterag/internal/config"
	"github.com/ziadkadry99/siterag/internal/crawler"
	"github.com/ziadkadry99/siterag/internal/db"
	"github.com/ziadkadry99/siterag/internal/embeddings"
	"github.com/ziadkadry99/siterag/internal/fetch"
	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/llm"
	"github.com/ziadkadry99/siterag/internal/logger"
	"github.com/ziadkadry99/siterag/internal/metrics"
	"github.com/ziadkadry99/siterag/internal/rag"
	"github.com/ziadkadry99/siterag/internal/sitemap"
	"github.com/ziadkadry99/siterag/internal/snapshot"
)

const (
	// ollamaEmbeddingDims matches nomic-embed-text, the preset Ollama model.
	ollamaEmbeddingDims = 768
	hashEmbeddingDims   = 256
)

// createEmbedderFromConfig creates an embeddings.Embedder based on config,
// wrapped with retries when configured.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	if model == "" {
		preset := config.GetPreset(provider, cfg.Quality)
		model = preset.EmbeddingModel
	}

	var e embeddings.Embedder
	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		e = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model))
	case config.ProviderGoogle:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderGoogle))
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY environment variable is required for Google embeddings")
		}
		e = embeddings.NewGoogleEmbedder(apiKey, embeddings.GoogleModel(model), "")
	case config.ProviderOllama:
		e = embeddings.NewOllamaEmbedder(model, ollamaEmbeddingDims, cfg.OllamaHost)
	case config.ProviderHash:
		e = embeddings.NewHashEmbedder(hashEmbeddingDims)
	default:
		// Providers without native embeddings fall back to OpenAI.
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required (used for embeddings when provider is %s)", provider)
		}
		e = embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model))
	}

	return embeddings.WithRetry(e, cfg.Index.EmbedRetries, 500*time.Millisecond), nil
}

// withQueryCache adds the LRU query cache used on the question path.
func withQueryCache(cfg *config.Config, e embeddings.Embedder) (embeddings.Embedder, error) {
	cached, err := embeddings.WithCache(e, cfg.Index.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return cached, nil
}

// createGeneratorFromConfig creates the answer generator, recording token
// usage into m.
func createGeneratorFromConfig(cfg *config.Config, m *metrics.Metrics) (llm.Generator, error) {
	provider, err := llm.NewProvider(string(cfg.Provider), cfg.Model, cfg.OllamaHost)
	if err != nil {
		return nil, err
	}
	provider = llm.WithRetry(provider, cfg.Generation.Retries, time.Second)

	opts := []llm.GeneratorOption{llm.WithUsageHook(rag.UsageHook(m))}
	if cfg.Generation.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(cfg.Generation.MaxTokens))
	}
	if cfg.Generation.Temperature > 0 {
		opts = append(opts, llm.WithTemperature(cfg.Generation.Temperature))
	}
	return llm.NewGenerator(provider, cfg.Model, opts...), nil
}

// createBuilderFromConfig wires the fetch -> sitemap -> crawl -> embed
// pipeline. progress may be nil.
func createBuilderFromConfig(cfg *config.Config, e embeddings.Embedder, m *metrics.Metrics, progress crawler.ProgressFunc) *knowledge.Builder {
	fetcher := fetch.New(fetch.Options{
		Timeout:   cfg.Crawl.Timeout,
		Retries:   cfg.Crawl.Retries,
		UserAgent: cfg.Crawl.UserAgent,
	})

	crawlOpts := []crawler.Option{crawler.WithResultHook(func(r crawler.Result) { m.PageFetched(r.Err) })}
	if progress != nil {
		crawlOpts = append(crawlOpts, crawler.WithProgress(progress))
	}

	return knowledge.NewBuilder(
		sitemap.NewResolver(fetcher, cfg.Crawl.MaxSitemapDepth),
		crawler.New(fetcher, crawlOpts...),
		e,
		knowledge.BuildOptions{
			Concurrency:  cfg.Crawl.Concurrency,
			EmbedTimeout: cfg.Index.EmbedTimeout,
			Context: chunk.ContextOptions{
				IncludeMetadata: cfg.Index.IncludeMetadata,
				MaxChars:        cfg.Index.MaxContextChars,
			},
			Filter: crawler.Filter{Include: cfg.Crawl.Include, Exclude: cfg.Crawl.Exclude},
		},
	)
}

// createSnapshotStore returns the snapshot store for the configured backend.
// database is only used by the sqlite backend.
func createSnapshotStore(cfg *config.Config, database *db.DB) snapshot.Store {
	if cfg.Snapshot.Backend == config.SnapshotSQLite {
		return snapshot.NewDBStore(database, snapshot.DefaultName)
	}
	return snapshot.NewFileStore(cfg.SnapshotPath())
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `siterag init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// app bundles a Service with the resources it owns.
type app struct {
	cfg       *config.Config
	svc       *rag.Service
	metrics   *metrics.Metrics
	database  *db.DB
	snapshots snapshot.Store
}

type appOptions struct {
	// needGenerator is false for commands that never call Ask.
	needGenerator bool
	progress      crawler.ProgressFunc
}

// newApp loads config and wires every collaborator of the rag.Service.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{
		cfg:       cfg,
		metrics:   metrics.New(),
		database:  database,
		snapshots: createSnapshotStore(cfg, database),
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		a.database.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	queryEmbedder, err := withQueryCache(cfg, embedder)
	if err != nil {
		a.database.Close()
		return nil, err
	}

	var gen llm.Generator
	if opts.needGenerator {
		if gen, err = createGeneratorFromConfig(cfg, a.metrics); err != nil {
			a.database.Close()
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
	}

	a.svc = rag.New(rag.Config{
		Builder:   createBuilderFromConfig(cfg, embedder, a.metrics, opts.progress),
		Embedder:  queryEmbedder,
		Generator: gen,
		Snapshots: a.snapshots,
		Runs:      db.NewRunStore(database),
		Metrics:   a.metrics,
		DefaultK:  cfg.Index.DefaultK,
	})

	logger.FromContext(ctx).Debug("siterag initialised",
		"provider", cfg.Provider, "model", cfg.Model,
		"embedder", embedder.Name(), "snapshot_backend", cfg.Snapshot.Backend, "db", database.Path())
	return a, nil
}

// loadSnapshot restores the saved knowledge base. A missing snapshot is
// reported as false with no error.
func (a *app) loadSnapshot(ctx context.Context) (bool, error) {
	if _, err := a.svc.LoadSnapshot(ctx); err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close stops the service and releases the database.
func (a *app) Close(ctx context.Context) error {
	err := a.svc.Close(ctx)
	if cerr := a.database.Close(); err == nil {
		err = cerr
	}
	return err
}

package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/siterag/internal/chunk"
	"github.com/ziadkadry99/siterag/internal/crawler"
	"github.com/ziadkadry99/siterag/internal/embeddings"
	"github.com/ziadkadry99/siterag/internal/extract"
	"github.com/ziadkadry99/siterag/internal/logger"
)

// DefaultEmbedTimeout bounds the single embedding call of a build.
const DefaultEmbedTimeout = 2 * time.Minute

// Resolver expands a sitemap into page URLs.
type Resolver interface {
	Resolve(ctx context.Context, url string) []string
}

// Crawler fetches and extracts pages.
type Crawler interface {
	Crawl(ctx context.Context, urls []string, limit int) (map[string]extract.PageRecord, error)
}

// BuildOptions tunes a Builder.
type BuildOptions struct {
	Concurrency  int
	EmbedTimeout time.Duration
	Context      chunk.ContextOptions
	Filter       crawler.Filter
}

// DefaultBuildOptions returns the defaults used by the service.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Concurrency:  crawler.DefaultConcurrency,
		EmbedTimeout: DefaultEmbedTimeout,
		Context:      chunk.DefaultContextOptions(),
	}
}

// Builder runs the ingestion pipeline and assembles a KnowledgeBase.
type Builder struct {
	resolver Resolver
	crawler  Crawler
	embedder embeddings.Embedder
	opts     BuildOptions
}

// NewBuilder creates a Builder.
func NewBuilder(r Resolver, c Crawler, e embeddings.Embedder, opts BuildOptions) *Builder {
	if opts.Concurrency < 1 {
		opts.Concurrency = crawler.DefaultConcurrency
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Builder{resolver: r, crawler: c, embedder: e, opts: opts}
}

// Build resolves, crawls, chunks and embeds the site behind sitemapURL. The
// returned knowledge base is ready; on error nothing usable is returned.
func (b *Builder) Build(ctx context.Context, sitemapURL string) (*KnowledgeBase, error) {
	log := logger.FromContext(ctx).With("sitemap", sitemapURL)

	urls := b.resolver.Resolve(ctx, sitemapURL)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved := len(urls)
	urls = b.opts.Filter.Apply(urls)
	log.Info("Resolved sitemap", "urls", resolved, "selected", len(urls))

	pages, err := b.crawler.Crawl(ctx, urls, b.opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}

	kb, err := b.Assemble(ctx, sitemapURL, pages)
	if err != nil {
		return nil, err
	}
	kb.Stats.PagesResolved = resolved
	return kb, nil
}

// Assemble turns crawled pages into a knowledge base. Pages are processed
// in URL order so equal input gives equal ranges.
func (b *Builder) Assemble(ctx context.Context, sourceURL string, pages map[string]extract.PageRecord) (*KnowledgeBase, error) {
	log := logger.FromContext(ctx).With("sitemap", sourceURL)

	urls := make([]string, 0, len(pages))
	for u := range pages {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	kb := &KnowledgeBase{
		ID:        uuid.NewString(),
		SourceURL: sourceURL,
		Model:     b.embedder.Name(),
		Status:    StatusBuilding,
	}
	kb.Stats.PagesCrawled = len(pages)

	var texts []string
	counter := 0
	for _, u := range urls {
		rec := pages[u]
		if rec.IsEmpty() {
			kb.Stats.PagesSkipped++
			continue
		}
		chunks := chunk.FormatChunks(u, rec)
		if len(chunks) == 0 {
			kb.Stats.PagesSkipped++
			continue
		}
		kb.Ranges = append(kb.Ranges, ChunkRange{Start: counter, End: counter + len(chunks)})
		kb.Documents = append(kb.Documents, Document{URL: u, Context: chunk.FormatContext(rec, b.opts.Context)})
		texts = append(texts, chunk.Texts(chunks)...)
		counter += len(chunks) + 1
	}

	if len(texts) == 0 {
		return nil, ErrNoContent
	}

	vectors, err := b.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	kb.Embeddings, kb.Texts = align(kb.Ranges, vectors, texts)
	kb.Stats.Documents = len(kb.Documents)
	kb.Stats.Chunks = len(texts)
	kb.Status = StatusReady
	kb.BuiltAt = time.Now().UTC()

	log.Info("Knowledge base built", "documents", kb.Stats.Documents, "chunks", kb.Stats.Chunks,
		"skipped", kb.Stats.PagesSkipped)
	return kb, nil
}

func (b *Builder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, b.opts.EmbedTimeout)
	defer cancel()

	vectors, err := b.embedder.Embed(ectx, texts)
	if err != nil {
		if errors.Is(ectx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("embed %d chunks: timed out after %s: %w", len(texts), b.opts.EmbedTimeout, err)
		}
		return nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(texts))
	}
	return vectors, nil
}

// align spreads the packed vectors over global positions, leaving the
// reserved gap after each range empty.
func align(ranges []ChunkRange, vectors [][]float32, texts []string) ([][]float32, []string) {
	if len(ranges) == 0 {
		return nil, nil
	}
	total := ranges[len(ranges)-1].End
	outVec := make([][]float32, total)
	outText := make([]string, total)
	i := 0
	for _, r := range ranges {
		for pos := r.Start; pos < r.End; pos++ {
			outVec[pos] = vectors[i]
			outText[pos] = texts[i]
			i++
		}
	}
	return outVec, outText
}

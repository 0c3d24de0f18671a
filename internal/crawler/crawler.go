// Package crawler fetches and extracts pages with a bounded worker pool.
package crawler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/siterag/internal/extract"
	"github.com/ziadkadry99/siterag/internal/fetch"
	"github.com/ziadkadry99/siterag/internal/logger"
)

// DefaultConcurrency is the pool size used when none is given.
const DefaultConcurrency = 5

// ProgressFunc is called after each page completes, successfully or not.
type ProgressFunc func(done, total int, url string)

// Result is the outcome of crawling one URL.
type Result struct {
	URL    string
	Record extract.PageRecord
	Err    error
}

// Crawler fetches pages and runs the extractor over each body.
type Crawler struct {
	getter     fetch.Getter
	onProgress ProgressFunc
	onResult   func(Result)
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Crawler) { c.onProgress = fn }
}

// WithResultHook registers a callback invoked once per finished URL.
func WithResultHook(fn func(Result)) Option {
	return func(c *Crawler) { c.onResult = fn }
}

// New creates a Crawler that fetches through getter.
func New(getter fetch.Getter, opts ...Option) *Crawler {
	c := &Crawler{getter: getter}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches every URL with at most limit in flight and returns one
// record per distinct URL. A failed page yields an empty record. If ctx is
// cancelled, Crawl stops starting new pages and returns ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, urls []string, limit int) (map[string]extract.PageRecord, error) {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	log := logger.FromContext(ctx)
	urls = dedupe(urls)
	total := len(urls)

	var (
		mu      sync.Mutex
		pages   = make(map[string]extract.PageRecord, total)
		done    atomic.Int64
		failed  atomic.Int64
		collect = func(r Result) {
			mu.Lock()
			pages[r.URL] = r.Record
			mu.Unlock()
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, u := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			r := c.crawlOne(gctx, u)
			if r.Err != nil {
				failed.Add(1)
				log.Warn("Failed to crawl page", "url", u, "err", r.Err)
			}
			collect(r)
			if c.onResult != nil {
				c.onResult(r)
			}
			n := done.Add(1)
			if c.onProgress != nil {
				c.onProgress(int(n), total, u)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("Crawl finished", "pages", total, "failed", failed.Load())
	return pages, nil
}

func (c *Crawler) crawlOne(ctx context.Context, url string) Result {
	body, err := c.getter.Get(ctx, url)
	if err != nil {
		return Result{URL: url, Record: extract.NewPageRecord(), Err: err}
	}
	return Result{URL: url, Record: extract.Extract(body)}
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ziadkadry99/siterag/internal/logger"
)

// RetryEmbedder retries failed Embed calls with exponential backoff.
type RetryEmbedder struct {
	inner    Embedder
	attempts uint64
	base     time.Duration
	maxWait  time.Duration
}

// WithRetry wraps e so that each Embed call is attempted up to attempts+1
// times. attempts <= 0 returns e unchanged.
func WithRetry(e Embedder, attempts int, base time.Duration) Embedder {
	if attempts <= 0 {
		return e
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &RetryEmbedder{inner: e, attempts: uint64(attempts), base: base, maxWait: 30 * time.Second}
}

func (r *RetryEmbedder) Name() string    { return r.inner.Name() }
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }

func (r *RetryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := retry.WithMaxRetries(r.attempts, retry.WithCappedDuration(r.maxWait, retry.NewExponential(r.base)))

	var out [][]float32
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		vecs, err := r.inner.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.FromContext(ctx).Warn("Embedding request failed, retrying",
				"model", r.inner.Name(), "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ziadkadry99/siterag/internal/logger"
)

// RetryProvider retries failed completions with jittered exponential backoff.
type RetryProvider struct {
	provider Provider
	attempts uint64
	base     time.Duration
}

// WithRetry wraps p so each completion is attempted up to attempts+1 times.
// attempts <= 0 returns p unchanged.
func WithRetry(p Provider, attempts int, base time.Duration) Provider {
	if attempts <= 0 {
		return p
	}
	if base <= 0 {
		base = time.Second
	}
	return &RetryProvider{provider: p, attempts: uint64(attempts), base: base}
}

func (r *RetryProvider) Name() string {
	return r.provider.Name()
}

func (r *RetryProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	backoff := retry.NewExponential(r.base)
	backoff = retry.WithCappedDuration(20*time.Second, backoff)
	backoff = retry.WithMaxRetries(r.attempts, retry.WithJitterPercent(10, backoff))

	var resp *CompletionResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := r.provider.Complete(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.FromContext(ctx).Warn("Completion failed, retrying", "provider", r.provider.Name(), "err", err)
			return retry.RetryableError(err)
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Package fetch is the HTTP client shared by the sitemap resolver and the
// page crawler.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrFetch is matched by every error returned from Get.
var ErrFetch = errors.New("fetch failed")

// Error describes a failed request. Status is zero when no response arrived.
type Error struct {
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrFetch }

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
}

// DefaultOptions mirrors the crawl defaults: 10s per request, no retries.
func DefaultOptions() Options {
	return Options{
		Timeout:   10 * time.Second,
		UserAgent: "siterag/1.0",
	}
}

// Getter fetches the body of a URL.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Fetcher performs GET requests with a per-request timeout and optional
// retries on transient failures.
type Fetcher struct {
	client *resty.Client
}

// New builds a Fetcher from opts.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(max(opts.Retries, 0)).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.AddRetryCondition(retryCondition)
	return &Fetcher{client: client}
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// Get returns the response body. Non-2xx responses are errors.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	if resp.IsError() || resp.StatusCode() >= 300 {
		return nil, &Error{URL: url, Status: resp.StatusCode(), Err: errors.New(resp.Status())}
	}
	return resp.Body(), nil
}

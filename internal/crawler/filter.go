package crawler

import (
	"net/url"
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects page URLs by glob patterns over their path.
type Filter struct {
	Include []string
	Exclude []string
}

// Allows reports whether rawURL passes the filter. An empty Include list
// admits everything; Exclude wins over Include.
func (f Filter) Allows(rawURL string) bool {
	p := urlPath(rawURL)
	if len(f.Include) > 0 && !matchesAny(p, f.Include) {
		return false
	}
	return !matchesAny(p, f.Exclude)
}

// Apply returns the URLs that pass the filter, preserving order.
func (f Filter) Apply(urls []string) []string {
	if len(f.Include) == 0 && len(f.Exclude) == 0 {
		return urls
	}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.Allows(u) {
			out = append(out, u)
		}
	}
	return out
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// matchesAny checks the full path and then the last segment, so "*.pdf"
// matches at any depth.
func matchesAny(p string, patterns []string) bool {
	base := path.Base(p)
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, p); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

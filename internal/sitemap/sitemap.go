// Package sitemap expands a sitemap URL into the page URLs it lists,
// following nested sitemap indexes.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ziadkadry99/siterag/internal/fetch"
	"github.com/ziadkadry99/siterag/internal/logger"
)

// ErrParse is returned for documents that are not a sitemap index or urlset.
var ErrParse = errors.New("sitemap parse failed")

// DefaultMaxDepth bounds how many index levels are followed.
const DefaultMaxDepth = 5

// Kind distinguishes a page list from an index of further sitemaps.
type Kind int

const (
	KindURLSet Kind = iota
	KindIndex
)

// Resolver walks sitemap documents.
type Resolver struct {
	getter   fetch.Getter
	maxDepth int
}

// NewResolver creates a Resolver. maxDepth <= 0 uses DefaultMaxDepth.
func NewResolver(getter fetch.Getter, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{getter: getter, maxDepth: maxDepth}
}

// Resolve returns every page URL reachable from url, in listing order.
// Failures at any node are logged and that node contributes nothing.
func (r *Resolver) Resolve(ctx context.Context, url string) []string {
	visited := map[string]bool{}
	return r.resolve(ctx, url, 0, visited)
}

func (r *Resolver) resolve(ctx context.Context, url string, depth int, visited map[string]bool) []string {
	log := logger.FromContext(ctx).With("sitemap", url)
	if ctx.Err() != nil {
		return nil
	}
	if visited[url] {
		log.Warn("Sitemap already visited, skipping")
		return nil
	}
	visited[url] = true
	if depth > r.maxDepth {
		log.Warn("Sitemap nesting too deep, skipping", "depth", depth)
		return nil
	}

	body, err := r.getter.Get(ctx, url)
	if err != nil {
		log.Error("Failed to fetch sitemap", "err", err)
		return nil
	}
	k, locs, err := Parse(body)
	if err != nil {
		log.Error("Failed to parse sitemap", "err", err)
		return nil
	}

	if k == KindURLSet {
		log.Debug("Parsed urlset", "urls", len(locs))
		return locs
	}

	var pages []string
	for _, child := range locs {
		pages = append(pages, r.resolve(ctx, child, depth+1, visited)...)
	}
	return pages
}

// Parse reads a sitemap document and returns its kind and <loc> values.
// Element names are matched on their local part so any namespace works.
func Parse(body []byte) (Kind, []string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		root   string
		locs   []string
		inLoc  bool
		loc    strings.Builder
		parent string
		stack  []string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if root == "" {
				root = name
			}
			if name == "loc" && len(stack) > 0 {
				parent = stack[len(stack)-1]
				inLoc = true
				loc.Reset()
			}
			stack = append(stack, name)
		case xml.CharData:
			if inLoc {
				loc.Write(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == "loc" && inLoc {
				inLoc = false
				if v := strings.TrimSpace(loc.String()); v != "" && (parent == "url" || parent == "sitemap") {
					locs = append(locs, v)
				}
			}
		}
	}

	switch root {
	case "urlset":
		return KindURLSet, locs, nil
	case "sitemapindex":
		return KindIndex, locs, nil
	case "":
		return 0, nil, fmt.Errorf("%w: empty document", ErrParse)
	default:
		return 0, nil, fmt.Errorf("%w: unexpected root element <%s>", ErrParse, root)
	}
}

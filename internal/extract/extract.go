// Package extract turns raw HTML into a PageRecord: the page title, its
// <meta> entries, and the visible text grouped under the heading that
// introduces it.
//
// The markup is flattened into an ordered slice of elements with explicit
// parent, sibling and subtree bounds, and heading/text association is a
// linear walk over that slice.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextTags are the elements whose text is collected as fragments.
var TextTags = map[string]bool{
	"p":      true,
	"span":   true,
	"div":    true,
	"li":     true,
	"td":     true,
	"th":     true,
	"a":      true,
	"strong": true,
	"em":     true,
	"label":  true,
}

// ignoredAtoms are subtrees that never contribute visible text.
var ignoredAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

type element struct {
	tag         string
	level       int // 1-6 for headings, 0 otherwise
	text        string
	parent      int
	nextSibling int
	end         int // one past the last index of this element's subtree
}

type sectionResult struct {
	headings map[string]Heading
	orphans  []Fragment
}

type document struct {
	elems []element
	metas []Meta
}

// Extract parses raw markup into a PageRecord. It never fails: malformed
// input degrades to whatever partial record could be built.
func Extract(raw []byte) (rec PageRecord) {
	rec = NewPageRecord()

	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return rec
	}

	doc := flatten(root)

	rec.Title = safeStep(doc.title)
	sec := safeStep(func() sectionResult {
		headings, orphans := doc.sections()
		return sectionResult{headings: headings, orphans: orphans}
	})
	if sec.headings != nil {
		rec.Headings = sec.headings
	}
	if sec.orphans != nil {
		rec.Orphans = sec.orphans
	}
	if len(doc.metas) > 0 {
		rec.Metadata = doc.metas
	}
	return rec
}

// safeStep isolates one extraction aspect so a fault in it does not lose
// the others.
func safeStep[T any](fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
		}
	}()
	return fn()
}

// Normalize collapses whitespace runs to a single space and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func flatten(root *html.Node) *document {
	d := &document{}
	prev := -1
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		idx := len(d.elems)
		d.add(c, -1)
		if prev >= 0 {
			d.elems[prev].nextSibling = idx
		}
		prev = idx
	}
	return d
}

// add appends n and its element descendants in document order and returns
// the raw text of the subtree.
func (d *document) add(n *html.Node, parent int) string {
	idx := len(d.elems)
	d.elems = append(d.elems, element{
		tag:         n.Data,
		level:       headingLevel(n.DataAtom),
		parent:      parent,
		nextSibling: -1,
	})

	if n.DataAtom == atom.Meta {
		d.addMeta(n)
	}

	var sb strings.Builder
	prev := -1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			if ignoredAtoms[c.DataAtom] {
				continue
			}
			childIdx := len(d.elems)
			sb.WriteString(d.add(c, idx))
			if prev >= 0 {
				d.elems[prev].nextSibling = childIdx
			}
			prev = childIdx
		}
	}

	raw := sb.String()
	d.elems[idx].text = Normalize(raw)
	d.elems[idx].end = len(d.elems)
	return raw
}

func (d *document) addMeta(n *html.Node) {
	var m Meta
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "name":
			m.Name = a.Val
		case "property":
			m.Property = a.Val
		case "content":
			m.Content = Normalize(a.Val)
		}
	}
	// Keyless entries such as http-equiv carry nothing a reader can label.
	if m.Content != "" && m.Key() != "" {
		d.metas = append(d.metas, m)
	}
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func (d *document) title() string {
	for _, e := range d.elems {
		if e.tag == "title" {
			return e.text
		}
	}
	return ""
}

// isBoundary reports whether e closes the section opened by a heading of
// the given level.
func isBoundary(level int, e element) bool {
	return e.level > 0 && e.level <= level
}

type headingRef struct {
	idx int
	key string
}

// sections groups fragments under headings and returns the remaining text
// elements as orphans.
func (d *document) sections() (map[string]Heading, []Fragment) {
	headings := map[string]Heading{}
	captured := make([]bool, len(d.elems))

	// Keys are assigned in document order so the first occurrence keeps the
	// plain text and later ones get " (n)".
	var refs []headingRef
	for i, e := range d.elems {
		if e.level == 0 || e.text == "" {
			continue
		}
		key := e.text
		for n := 1; ; n++ {
			if _, taken := headings[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s (%d)", e.text, n)
		}
		headings[key] = Heading{Level: e.level, Position: len(refs), Fragments: []Fragment{}}
		refs = append(refs, headingRef{idx: i, key: key})
		d.markSubtree(captured, i)
	}

	// Later headings claim first, so text following a nested subheading is
	// attributed to the subheading rather than to its parent.
	for r := len(refs) - 1; r >= 0; r-- {
		ref := refs[r]
		h := headings[ref.key]
		h.Fragments = d.collect(ref.idx, captured)
		headings[ref.key] = h
	}

	return headings, d.orphans(captured)
}

// collect walks the siblings following heading hi up to the next boundary.
func (d *document) collect(hi int, captured []bool) []Fragment {
	level := d.elems[hi].level
	frags := []Fragment{}
	for j := d.elems[hi].nextSibling; j >= 0; j = d.elems[j].nextSibling {
		e := d.elems[j]
		if isBoundary(level, e) {
			break
		}
		if captured[j] {
			continue
		}
		if TextTags[e.tag] && e.text != "" {
			frags = append(frags, Fragment{Tag: e.tag, Content: e.text})
		}
		for k := j + 1; k < e.end; k++ {
			nested := d.elems[k]
			if captured[k] || !TextTags[nested.tag] || nested.text == "" || d.sameAsTextAncestor(k, j) {
				continue
			}
			frags = append(frags, Fragment{Tag: nested.tag, Content: nested.text})
		}
		d.markSubtree(captured, j)
	}
	return frags
}

func (d *document) orphans(captured []bool) []Fragment {
	out := []Fragment{}
	for i, e := range d.elems {
		if captured[i] || !TextTags[e.tag] || e.text == "" {
			continue
		}
		// Layout wrappers around captured sections would only repeat them.
		if d.wrapsCaptured(captured, i) || d.sameAsTextAncestor(i, 0) {
			continue
		}
		out = append(out, Fragment{Tag: e.tag, Content: e.text})
	}
	return out
}

// sameAsTextAncestor reports whether the closest text-tag ancestor of i at or
// below index bound has identical text, in which case i adds nothing new.
func (d *document) sameAsTextAncestor(i, bound int) bool {
	for p := d.elems[i].parent; p >= bound; p = d.elems[p].parent {
		if TextTags[d.elems[p].tag] {
			return d.elems[p].text == d.elems[i].text
		}
	}
	return false
}

func (d *document) wrapsCaptured(captured []bool, i int) bool {
	for k := i + 1; k < d.elems[i].end; k++ {
		if captured[k] {
			return true
		}
	}
	return false
}

func (d *document) markSubtree(captured []bool, i int) {
	for k := i; k < d.elems[i].end; k++ {
		captured[k] = true
	}
}

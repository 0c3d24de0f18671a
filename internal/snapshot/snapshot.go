// Package snapshot persists a built knowledge base so a restart can serve
// queries without crawling the site again.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/ziadkadry99/siterag/internal/knowledge"
)

// formatVersion is bumped whenever the encoded layout changes.
const formatVersion = 1

var (
	// ErrNotFound is returned by Load when no snapshot has been saved.
	ErrNotFound = errors.New("snapshot not found")
	// ErrNotReady is returned by Save for a knowledge base that is not ready.
	ErrNotReady = errors.New("knowledge base is not ready")
	// ErrVersion is returned when a snapshot was written by an incompatible version.
	ErrVersion = errors.New("unsupported snapshot version")
)

// Store saves and restores a single knowledge base.
type Store interface {
	Save(ctx context.Context, kb *knowledge.KnowledgeBase) error
	Load(ctx context.Context) (*knowledge.KnowledgeBase, error)
	Location() string
}

type envelope struct {
	Version int
	KB      knowledge.KnowledgeBase
}

// Encode writes kb as gzip-compressed gob.
func Encode(w io.Writer, kb *knowledge.KnowledgeBase) error {
	if !kb.Ready() {
		return ErrNotReady
	}
	zw := gzip.NewWriter(w)
	if err := gob.NewEncoder(zw).Encode(envelope{Version: formatVersion, KB: *kb}); err != nil {
		zw.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}
	return nil
}

// Decode reads a snapshot written by Encode and checks that its ranges are
// consistent with its embeddings before returning it.
func Decode(r io.Reader) (*knowledge.KnowledgeBase, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer zr.Close()

	var env envelope
	if err := gob.NewDecoder(zr).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if env.Version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, env.Version)
	}
	kb := env.KB
	if err := validate(&kb); err != nil {
		return nil, err
	}
	return &kb, nil
}

func encodeBytes(kb *knowledge.KnowledgeBase) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, kb); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validate(kb *knowledge.KnowledgeBase) error {
	if len(kb.Ranges) != len(kb.Documents) {
		return fmt.Errorf("corrupt snapshot: %d ranges for %d documents", len(kb.Ranges), len(kb.Documents))
	}
	prev := 0
	for i, r := range kb.Ranges {
		if r.Start < prev || r.End <= r.Start {
			return fmt.Errorf("corrupt snapshot: range %d [%d,%d) out of order", i, r.Start, r.End)
		}
		if r.End > len(kb.Embeddings) {
			return fmt.Errorf("corrupt snapshot: range %d ends past %d embeddings", i, len(kb.Embeddings))
		}
		prev = r.End
	}
	if !kb.Ready() {
		return ErrNotReady
	}
	return nil
}

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/logger"
)

// FileStore keeps the snapshot in a single file. Writes go through a
// temporary file and a rename so a crash never leaves a torn snapshot.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the snapshot file path.
func (s *FileStore) Location() string { return s.path }

// Save writes kb to disk.
func (s *FileStore) Save(ctx context.Context, kb *knowledge.KnowledgeBase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, kb); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	logger.FromContext(ctx).Info("Snapshot saved", "path", s.path, "documents", len(kb.Documents),
		"chunks", kb.NumChunks())
	return nil
}

// Load reads the snapshot from disk.
func (s *FileStore) Load(ctx context.Context) (*knowledge.KnowledgeBase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	kb, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return kb, nil
}

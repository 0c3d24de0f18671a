package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ziadkadry99/siterag/internal/db"
	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/logger"
)

// DefaultName is the row a DBStore uses when none is given.
const DefaultName = "current"

// DBStore keeps the snapshot as a blob in the snapshots table.
type DBStore struct {
	db   *db.DB
	name string
}

// NewDBStore creates a DBStore for the named snapshot row.
func NewDBStore(database *db.DB, name string) *DBStore {
	if name == "" {
		name = DefaultName
	}
	return &DBStore{db: database, name: name}
}

// Location identifies the database and row.
func (s *DBStore) Location() string {
	return s.db.Path() + "#" + s.name
}

// Save upserts kb into the snapshots table.
func (s *DBStore) Save(ctx context.Context, kb *knowledge.KnowledgeBase) error {
	payload, err := encodeBytes(kb)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, kb_id, source_url, documents, chunks, payload, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(name) DO UPDATE SET
		   kb_id = excluded.kb_id,
		   source_url = excluded.source_url,
		   documents = excluded.documents,
		   chunks = excluded.chunks,
		   payload = excluded.payload,
		   saved_at = excluded.saved_at`,
		s.name, kb.ID, kb.SourceURL, len(kb.Documents), kb.NumChunks(), payload,
	)
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	logger.FromContext(ctx).Info("Snapshot saved", "db", s.db.Path(), "name", s.name,
		"documents", len(kb.Documents), "bytes", len(payload))
	return nil
}

// Load reads the snapshot blob back.
func (s *DBStore) Load(ctx context.Context) (*knowledge.KnowledgeBase, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE name = ?`, s.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Location())
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return Decode(bytes.NewReader(payload))
}

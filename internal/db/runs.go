package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of an ingest run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one ingestion attempt.
type Run struct {
	ID         string     `json:"id"`
	SitemapURL string     `json:"sitemap_url"`
	Status     RunStatus  `json:"status"`
	Pages      int        `json:"pages"`
	Documents  int        `json:"documents"`
	Chunks     int        `json:"chunks"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStore persists ingest run history.
type RunStore struct {
	db *DB
}

// NewRunStore creates a RunStore.
func NewRunStore(database *DB) *RunStore {
	return &RunStore{db: database}
}

// Start records a new running ingest for sitemapURL.
func (s *RunStore) Start(ctx context.Context, sitemapURL string) (*Run, error) {
	r := Run{
		ID:         uuid.NewString(),
		SitemapURL: sitemapURL,
		Status:     RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, sitemap_url, status, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.SitemapURL, r.Status, r.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting ingest run: %w", err)
	}
	return &r, nil
}

// Finish stores the final state of a run.
func (s *RunStore) Finish(ctx context.Context, r *Run) error {
	now := time.Now().UTC()
	r.FinishedAt = &now
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, pages = ?, documents = ?, chunks = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		r.Status, r.Pages, r.Documents, r.Chunks, r.Error, now, r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ingest run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingest run %s not found", r.ID)
	}
	return nil
}

// Get returns a run by ID, or nil if it does not exist.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sitemap_url, status, pages, documents, chunks, error, started_at, finished_at
		 FROM ingest_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting ingest run: %w", err)
	}
	return r, nil
}

// List returns the most recent runs first. limit <= 0 means 20.
func (s *RunStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sitemap_url, status, pages, documents, chunks, error, started_at, finished_at
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ingest run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	if err := sc.Scan(&r.ID, &r.SitemapURL, &r.Status, &r.Pages, &r.Documents, &r.Chunks, &r.Error,
		&r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

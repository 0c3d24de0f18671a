package rag

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/siterag/internal/db"
)

// RunRecorder keeps the ingest run history. *db.RunStore implements it.
type RunRecorder interface {
	Start(ctx context.Context, sitemapURL string) (*db.Run, error)
	Finish(ctx context.Context, r *db.Run) error
	List(ctx context.Context, limit int) ([]db.Run, error)
}

const memoryRunLimit = 50

// memoryRuns is the RunRecorder used when no database is configured.
type memoryRuns struct {
	mu   sync.Mutex
	runs []db.Run
}

func (m *memoryRuns) Start(_ context.Context, sitemapURL string) (*db.Run, error) {
	r := db.Run{
		ID:         uuid.NewString(),
		SitemapURL: sitemapURL,
		Status:     db.RunRunning,
		StartedAt:  time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	if len(m.runs) > memoryRunLimit {
		m.runs = m.runs[len(m.runs)-memoryRunLimit:]
	}
	return &r, nil
}

func (m *memoryRuns) Finish(_ context.Context, r *db.Run) error {
	now := time.Now().UTC()
	r.FinishedAt = &now
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == r.ID {
			m.runs[i] = *r
			return nil
		}
	}
	return nil
}

func (m *memoryRuns) List(_ context.Context, limit int) ([]db.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Run, 0, min(limit, len(m.runs)))
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

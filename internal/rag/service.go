// Package rag ties ingestion, retrieval and generation together behind the
// operations exposed over HTTP, MCP and the CLI.
package rag

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ziadkadry99/siterag/internal/db"
	"github.com/ziadkadry99/siterag/internal/embeddings"
	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/llm"
	"github.com/ziadkadry99/siterag/internal/logger"
	"github.com/ziadkadry99/siterag/internal/metrics"
	"github.com/ziadkadry99/siterag/internal/snapshot"
)

// DefaultK is the number of documents retrieved per question.
const DefaultK = 3

var (
	// ErrEmptyKnowledgeBase is returned by queries before any build or
	// snapshot load has completed.
	ErrEmptyKnowledgeBase = fmt.Errorf("%w: ingest a sitemap or load a snapshot first", knowledge.ErrEmptyIndex)
	// ErrBuildInProgress is returned when an ingest is requested while
	// another one is running.
	ErrBuildInProgress = errors.New("an ingestion is already in progress")
	// ErrInvalidInput marks requests rejected before any work starts.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoSnapshotStore is returned by snapshot operations when none is configured.
	ErrNoSnapshotStore = errors.New("no snapshot store configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("service is closed")
)

// Builder produces a ready knowledge base from a sitemap.
type Builder interface {
	Build(ctx context.Context, sitemapURL string) (*knowledge.KnowledgeBase, error)
}

// IngestRequest asks for a knowledge base to be built from a sitemap.
type IngestRequest struct {
	SitemapURL    string `json:"sitemap_url"`
	StoreSnapshot bool   `json:"store_snapshot"`
}

// Source is a document that contributed to an answer.
type Source struct {
	URL   string  `json:"url"`
	Score float32 `json:"score"`
}

// Answer is the generated response to a question.
type Answer struct {
	Question string   `json:"question"`
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// Status describes the active knowledge base and any running ingest.
type Status struct {
	State           knowledge.Status `json:"state"`
	Building        bool             `json:"building"`
	ActiveRun       string           `json:"active_run,omitempty"`
	KnowledgeBaseID string           `json:"knowledge_base_id,omitempty"`
	SourceURL       string           `json:"source_url,omitempty"`
	Model           string           `json:"model,omitempty"`
	BuiltAt         *time.Time       `json:"built_at,omitempty"`
	Documents       int              `json:"documents"`
	Chunks          int              `json:"chunks"`
	Stats           knowledge.Stats  `json:"stats"`
	LastRun         *db.Run          `json:"last_run,omitempty"`
}

// Config holds the collaborators of a Service. Snapshots, Runs and Metrics
// are optional.
type Config struct {
	Builder   Builder
	Embedder  embeddings.Embedder
	Generator llm.Generator
	Snapshots snapshot.Store
	Runs      RunRecorder
	Metrics   *metrics.Metrics
	DefaultK  int
}

// Service owns the current knowledge base. Queries read it lock-free while
// at most one ingest builds its replacement.
type Service struct {
	store     *knowledge.Store
	builder   Builder
	embedder  embeddings.Embedder
	generator llm.Generator
	snapshots snapshot.Store
	runs      RunRecorder
	metrics   *metrics.Metrics
	defaultK  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	activeRun string
	closed    bool
}

// New creates a Service with an empty knowledge base.
func New(cfg Config) *Service {
	if cfg.DefaultK < 1 {
		cfg.DefaultK = DefaultK
	}
	if cfg.Runs == nil {
		cfg.Runs = &memoryRuns{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:     knowledge.NewStore(),
		builder:   cfg.Builder,
		embedder:  cfg.Embedder,
		generator: cfg.Generator,
		snapshots: cfg.Snapshots,
		runs:      cfg.Runs,
		metrics:   cfg.Metrics,
		defaultK:  cfg.DefaultK,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Current returns the active knowledge base. It is never nil.
func (s *Service) Current() *knowledge.KnowledgeBase {
	return s.store.Current()
}

// StartIngest validates the request and runs the build in the background.
// It returns as soon as the run is recorded; the outcome is visible through
// Status and Runs.
func (s *Service) StartIngest(ctx context.Context, req IngestRequest) (string, error) {
	run, err := s.begin(ctx, req, true)
	if err != nil {
		return "", err
	}

	bctx := logger.ContextWithLogger(s.ctx, logger.FromContext(ctx).With("run", run.ID))
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(bctx, req, run)
	}()
	return run.ID, nil
}

// Ingest runs a build in the foreground and returns the finished run.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*db.Run, error) {
	run, err := s.begin(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return s.execute(logger.ContextWithLogger(ctx, logger.FromContext(ctx).With("run", run.ID)), req, run)
}

// begin reserves the single build slot. When background is set the run is
// also registered with the wait group while mu is held, so Close either
// rejects it or waits for it.
func (s *Service) begin(ctx context.Context, req IngestRequest, background bool) (*db.Run, error) {
	if err := validateSitemapURL(req.SitemapURL); err != nil {
		return nil, err
	}
	if req.StoreSnapshot && s.snapshots == nil {
		return nil, ErrNoSnapshotStore
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.activeRun != "" {
		return nil, fmt.Errorf("%w: run %s", ErrBuildInProgress, s.activeRun)
	}
	run, err := s.runs.Start(ctx, req.SitemapURL)
	if err != nil {
		return nil, fmt.Errorf("recording ingest run: %w", err)
	}
	s.activeRun = run.ID
	if background {
		s.wg.Add(1)
	}
	return run, nil
}

func (s *Service) execute(ctx context.Context, req IngestRequest, run *db.Run) (*db.Run, error) {
	defer func() {
		s.mu.Lock()
		s.activeRun = ""
		s.mu.Unlock()
	}()
	log := logger.FromContext(ctx).With("sitemap", req.SitemapURL)
	log.Info("Ingestion started")

	start := time.Now()
	kb, err := s.builder.Build(ctx, req.SitemapURL)
	if err != nil {
		s.metrics.BuildFinished(time.Since(start), 0, 0, err)
		run.Status = db.RunFailed
		if ctx.Err() != nil {
			run.Status = db.RunCancelled
		}
		run.Error = err.Error()
		s.finish(ctx, run)
		log.Error("Ingestion failed, keeping previous knowledge base", "err", err)
		return run, fmt.Errorf("ingest %s: %w", req.SitemapURL, err)
	}
	s.metrics.BuildFinished(time.Since(start), kb.Stats.Documents, kb.Stats.Chunks, nil)

	s.store.Swap(kb)
	run.Status = db.RunSucceeded
	run.Pages = kb.Stats.PagesCrawled
	run.Documents = kb.Stats.Documents
	run.Chunks = kb.Stats.Chunks
	log.Info("Ingestion finished", "documents", run.Documents, "chunks", run.Chunks,
		"duration", time.Since(start).Round(time.Millisecond))

	if req.StoreSnapshot {
		if err := s.snapshots.Save(ctx, kb); err != nil {
			run.Error = "snapshot: " + err.Error()
			log.Warn("Snapshot not saved", "err", err)
		}
	}
	s.finish(ctx, run)
	return run, nil
}

func (s *Service) finish(ctx context.Context, run *db.Run) {
	if err := s.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		logger.FromContext(ctx).Warn("Failed to record ingest run", "run", run.ID, "err", err)
	}
}

func validateSitemapURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: sitemap_url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: sitemap_url must be an absolute http(s) URL", ErrInvalidInput)
	}
	return nil
}

// Search embeds query and returns the best matching documents. k == 0
// selects the configured default.
func (s *Service) Search(ctx context.Context, query string, k int) ([]knowledge.ScoredDocument, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if k == 0 {
		k = s.defaultK
	}
	kb := s.store.Current()
	if !kb.Ready() {
		return nil, ErrEmptyKnowledgeBase
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	results, err := kb.Search(vectors[0], k)
	if errors.Is(err, knowledge.ErrEmptyIndex) {
		return nil, ErrEmptyKnowledgeBase
	}
	return results, err
}

// Ask retrieves the top k documents for question and generates an answer
// from them. Generation failures are returned as *llm.GenerationError.
func (s *Service) Ask(ctx context.Context, question string, k int) (*Answer, error) {
	start := time.Now()
	ans, err := s.ask(ctx, question, k)
	s.metrics.QueryFinished(time.Since(start), err)
	return ans, err
}

func (s *Service) ask(ctx context.Context, question string, k int) (*Answer, error) {
	results, err := s.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}

	docs := make([]knowledge.Document, len(results))
	sources := make([]Source, len(results))
	for i, r := range results {
		docs[i] = r.Document
		sources[i] = Source{URL: r.URL, Score: r.Score}
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(docs, question))
	if err != nil {
		logger.FromContext(ctx).Error("Generation failed", "err", err)
		return nil, err
	}
	return &Answer{Question: question, Response: text, Sources: sources}, nil
}

// SaveSnapshot persists the active knowledge base and returns where it went.
func (s *Service) SaveSnapshot(ctx context.Context) (string, error) {
	if s.snapshots == nil {
		return "", ErrNoSnapshotStore
	}
	kb := s.store.Current()
	if !kb.Ready() {
		return "", ErrEmptyKnowledgeBase
	}
	if err := s.snapshots.Save(ctx, kb); err != nil {
		return "", fmt.Errorf("saving snapshot: %w", err)
	}
	return s.snapshots.Location(), nil
}

// LoadSnapshot replaces the active knowledge base with the saved one.
func (s *Service) LoadSnapshot(ctx context.Context) (Status, error) {
	if s.snapshots == nil {
		return Status{}, ErrNoSnapshotStore
	}
	kb, err := s.snapshots.Load(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("loading snapshot: %w", err)
	}
	log := logger.FromContext(ctx)
	if s.embedder != nil && kb.Model != s.embedder.Name() {
		log.Warn("Snapshot was embedded with a different model", "snapshot_model", kb.Model,
			"embedder", s.embedder.Name())
	}
	s.store.Swap(kb)
	s.metrics.SetKnowledgeSize(len(kb.Documents), kb.NumChunks())
	log.Info("Snapshot loaded", "from", s.snapshots.Location(), "documents", len(kb.Documents))
	return s.Status(ctx), nil
}

// Status reports the active knowledge base and the latest run.
func (s *Service) Status(ctx context.Context) Status {
	kb := s.store.Current()
	s.mu.Lock()
	active := s.activeRun
	s.mu.Unlock()

	st := Status{
		State:     knowledge.StatusEmpty,
		Building:  active != "",
		ActiveRun: active,
	}
	switch {
	case kb.Ready():
		st.State = knowledge.StatusReady
	case active != "":
		st.State = knowledge.StatusBuilding
	}
	if kb.Ready() {
		built := kb.BuiltAt
		st.KnowledgeBaseID = kb.ID
		st.SourceURL = kb.SourceURL
		st.Model = kb.Model
		st.BuiltAt = &built
		st.Documents = len(kb.Documents)
		st.Chunks = kb.NumChunks()
		st.Stats = kb.Stats
	}

	runs, err := s.runs.List(ctx, 1)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to read ingest runs", "err", err)
	} else if len(runs) > 0 {
		st.LastRun = &runs[0]
	}
	return st
}

// Runs lists recent ingest runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]db.Run, error) {
	return s.runs.List(ctx, limit)
}

// Wait blocks until background ingests have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels running ingests and waits for them until ctx expires.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UsageHook records generator token usage and cost on m.
func UsageHook(m *metrics.Metrics) func(*llm.CompletionResponse) {
	return func(resp *llm.CompletionResponse) {
		cost := resp.Cost()
		m.Usage(resp.InputTokens, resp.OutputTokens, cost)
		logger.Default().Debug("Generation usage", "model", resp.Model, "input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens, "cost_usd", cost)
	}
}

package rag

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/siterag/internal/db"
	"github.com/ziadkadry99/siterag/internal/knowledge"
	"github.com/ziadkadry99/siterag/internal/llm"
	"github.com/ziadkadry99/siterag/internal/logger"
	"github.com/ziadkadry99/siterag/internal/render"
	"github.com/ziadkadry99/siterag/internal/snapshot"
)

// RegisterRoutes mounts the RAG API under /rag.
func RegisterRoutes(r chi.Router, svc *Service, renderer *render.Renderer) {
	r.Route("/rag", func(r chi.Router) {
		r.Post("/ingest", handleIngest(svc))
		r.Get("/ask-query", handleAsk(svc, renderer))
		r.Get("/search", handleSearch(svc))
		r.Post("/snapshot/save", handleSaveSnapshot(svc))
		r.Post("/snapshot/load", handleLoadSnapshot(svc))
		r.Get("/load-vector-db-from-pickle", handleLoadSnapshot(svc))
		r.Get("/status", handleStatus(svc))
		r.Get("/runs", handleRuns(svc))
		r.Get("/ws", handleWebSocket(svc, renderer))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps service errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	var genErr *llm.GenerationError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, knowledge.ErrEmptyIndex):
		return http.StatusConflict, "EmptyKnowledgeBase"
	case errors.Is(err, ErrBuildInProgress):
		return http.StatusConflict, "BuildInProgress"
	case errors.Is(err, knowledge.ErrDimensionMismatch):
		return http.StatusConflict, "DimensionMismatch"
	case errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound, "SnapshotNotFound"
	case errors.Is(err, ErrNoSnapshotStore):
		return http.StatusNotImplemented, "NoSnapshotStore"
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable, "Unavailable"
	case errors.As(err, &genErr):
		return http.StatusBadGateway, "GenerationError"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("Request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "InvalidInput"})
}

func parseK(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("k")
	if v == "" {
		return 0, true
	}
	k, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return k, true
}

// parseIngest reads the request from query parameters, then lets a JSON
// body override them.
func parseIngest(r *http.Request) (IngestRequest, error) {
	q := r.URL.Query()
	req := IngestRequest{SitemapURL: q.Get("sitemap_url")}
	for _, name := range []string{"store_snapshot", "store_in_pickle"} {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return req, errors.New(name + " must be a boolean")
			}
			req.StoreSnapshot = b
		}
	}

	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		var body struct {
			SitemapURL    string `json:"sitemap_url"`
			StoreSnapshot *bool  `json:"store_snapshot"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return req, errors.New("invalid request body")
		}
		if body.SitemapURL != "" {
			req.SitemapURL = body.SitemapURL
		}
		if body.StoreSnapshot != nil {
			req.StoreSnapshot = *body.StoreSnapshot
		}
	}
	return req, nil
}

func handleIngest(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseIngest(r)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		runID, err := svc.StartIngest(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message": "Knowledge base ingestion started",
			"run_id":  runID,
		})
	}
}

type askResponse struct {
	Response string   `json:"response"`
	HTML     string   `json:"html,omitempty"`
	Sources  []Source `json:"sources"`
}

func handleAsk(svc *Service, renderer *render.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := parseK(r)
		if !ok {
			badRequest(w, "k must be an integer")
			return
		}
		format := r.URL.Query().Get("format")
		if format != "" && format != "text" && format != "html" {
			badRequest(w, "format must be text or html")
			return
		}

		ans, err := svc.Ask(r.Context(), r.URL.Query().Get("prompt"), k)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := askResponse{Response: ans.Response, Sources: ans.Sources}
		if format == "html" && renderer != nil {
			html, err := renderer.HTML(ans.Response)
			if err != nil {
				writeError(w, r, err)
				return
			}
			resp.HTML = html
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type searchResult struct {
	URL     string  `json:"url"`
	Score   float32 `json:"score"`
	Snippet string  `json:"snippet"`
}

func handleSearch(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := parseK(r)
		if !ok {
			badRequest(w, "k must be an integer")
			return
		}
		query := r.URL.Query().Get("q")
		if query == "" {
			query = r.URL.Query().Get("prompt")
		}
		results, err := svc.Search(r.Context(), query, k)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]searchResult, len(results))
		for i, res := range results {
			out[i] = searchResult{URL: res.URL, Score: res.Score, Snippet: strings.TrimSpace(res.Snippet)}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": out})
	}
}

func handleSaveSnapshot(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := svc.SaveSnapshot(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Snapshot saved", "location": loc})
	}
}

func handleLoadSnapshot(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.LoadSnapshot(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Knowledge base loaded from snapshot", "status": st})
	}
}

func handleStatus(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status(r.Context()))
	}
}

func handleRuns(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				badRequest(w, "limit must be an integer")
				return
			}
			limit = n
		}
		runs, err := svc.Runs(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if runs == nil {
			runs = []db.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

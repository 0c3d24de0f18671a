// Package metrics exposes Prometheus counters for ingestion, retrieval and
// generation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "siterag"

// Result labels.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched  *prometheus.CounterVec
	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	Documents     prometheus.Gauge
	Chunks        prometheus.Gauge
	Queries       *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	Tokens        *prometheus.CounterVec
	CostUSD       prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pages_fetched_total",
			Help: "Pages fetched during ingestion, by result.",
		}, []string{"result"}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "builds_total",
			Help: "Knowledge base builds, by result.",
		}, []string{"result"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "build_duration_seconds",
			Help:    "Wall time of knowledge base builds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "knowledge_documents",
			Help: "Documents in the active knowledge base.",
		}),
		Chunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "knowledge_chunks",
			Help: "Embedded chunks in the active knowledge base.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queries_total",
			Help: "Questions answered, by result.",
		}, []string{"result"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "query_duration_seconds",
			Help:    "Latency of retrieval plus generation.",
			Buckets: prometheus.DefBuckets,
		}),
		Tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "Tokens reported by the generator, by kind.",
		}, []string{"kind"}),
		CostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_cost_usd_total",
			Help: "Estimated generation cost in USD.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests, by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PagesFetched, m.Builds, m.BuildDuration, m.Documents, m.Chunks,
		m.Queries, m.QueryDuration, m.Tokens, m.CostUSD,
		m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PageFetched counts one crawled page.
func (m *Metrics) PageFetched(err error) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(result(err)).Inc()
}

// BuildFinished records a finished build and, on success, the size of the
// new knowledge base.
func (m *Metrics) BuildFinished(d time.Duration, documents, chunks int, err error) {
	if m == nil {
		return
	}
	m.Builds.WithLabelValues(result(err)).Inc()
	m.BuildDuration.Observe(d.Seconds())
	if err == nil {
		m.SetKnowledgeSize(documents, chunks)
	}
}

// SetKnowledgeSize updates the active knowledge base gauges.
func (m *Metrics) SetKnowledgeSize(documents, chunks int) {
	if m == nil {
		return
	}
	m.Documents.Set(float64(documents))
	m.Chunks.Set(float64(chunks))
}

// QueryFinished records one answered (or failed) question.
func (m *Metrics) QueryFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(result(err)).Inc()
	m.QueryDuration.Observe(d.Seconds())
}

// Usage records generator token usage and cost.
func (m *Metrics) Usage(promptTokens, completionTokens int, cost float64) {
	if m == nil {
		return
	}
	m.Tokens.WithLabelValues("prompt").Add(float64(promptTokens))
	m.Tokens.WithLabelValues("completion").Add(float64(completionTokens))
	if cost > 0 {
		m.CostUSD.Add(cost)
	}
}

// Middleware records request counts and latency labelled with the chi
// route pattern rather than the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

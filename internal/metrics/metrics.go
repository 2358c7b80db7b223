package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civiclab/ordinance-api/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	authFailedTotal        prometheus.Counter

	// upstream fetch metrics
	fetchTotal        *prometheus.CounterVec
	fetchDuration     prometheus.Histogram
	docxFallbackTotal prometheus.Counter
	searchTotal       *prometheus.CounterVec

	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal prometheus.Counter
	cacheEntries     prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics.
// Safe labels only (method, route, code, outcome) to avoid path/cardinality
// explosions.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_id", "vcs_dirty", "go_version"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the per-IP rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times the rate limiter visitor map filled up",
		}),
		authFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_auth_failed_total",
			Help: "Total requests rejected for a missing or invalid API key",
		}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "municode_fetch_total",
			Help: "Total upstream Municode fetches by kind and outcome",
		}, []string{"kind", "outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "municode_fetch_duration_seconds",
			Help:    "Time to fetch a document from Municode",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		docxFallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "municode_docx_fallback_total",
			Help: "Total times the DOCX fallback was attempted for a placeholder HTML page",
		}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ordinance_search_total",
			Help: "Total keyword searches by outcome",
		}, []string{"outcome"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "section_cache_hits_total",
			Help: "Total section cache hits by tier (memory, s3)",
		}, []string{"tier"}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "section_cache_misses_total",
			Help: "Total section cache misses",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "section_cache_entries",
			Help: "Current number of entries in the in-memory section cache",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.errorsTotal,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.authFailedTotal,
		m.fetchTotal,
		m.fetchDuration,
		m.docxFallbackTotal,
		m.searchTotal,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEntries,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// SetBuildInfoFromVersion is set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_id":   vi.BuildID,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic()         { m.httpPanicTotal.Inc() }
func (m *ServerMetrics) IncRateLimitDenied()   { m.ratelimitDeniedTotal.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.ratelimitCapacityTotal.Inc() }
func (m *ServerMetrics) IncAuthFailed()        { m.authFailedTotal.Inc() }

func (m *ServerMetrics) IncFetch(kind, outcome string) {
	m.fetchTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ServerMetrics) ObserveFetchDuration(seconds float64) {
	m.fetchDuration.Observe(seconds)
}

func (m *ServerMetrics) IncDocxFallback() { m.docxFallbackTotal.Inc() }

func (m *ServerMetrics) IncSearch(outcome string) {
	m.searchTotal.WithLabelValues(outcome).Inc()
}

func (m *ServerMetrics) IncCacheHit(tier string) {
	m.cacheHitsTotal.WithLabelValues(tier).Inc()
}

func (m *ServerMetrics) IncCacheMiss() { m.cacheMissesTotal.Inc() }

func (m *ServerMetrics) SetCacheEntries(n int) { m.cacheEntries.Set(float64(n)) }

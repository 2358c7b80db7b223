// Package ordhttp serves the ordinance API: fetch a section by Municode
// URL (with DOCX fallback for SPA shell pages) and keyword search.
package ordhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/civiclab/ordinance-api/internal/log"
	"github.com/civiclab/ordinance-api/internal/municode"
	"github.com/civiclab/ordinance-api/internal/ordinance"
	"github.com/civiclab/ordinance-api/internal/search"
)

// Fetcher is the outbound document client.
type Fetcher interface {
	AllowedURL(raw string) bool
	FetchBytes(ctx context.Context, raw string) (body []byte, contentType string, err error)
}

// Searcher finds candidate ordinance pages by keyword.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// SectionCache holds previously extracted sections.
type SectionCache interface {
	Get(ctx context.Context, url string) (*ordinance.Section, bool)
	Put(ctx context.Context, url string, sec *ordinance.Section)
}

// Hooks are optional observation points, typically wired to prometheus
// counters in main.
type Hooks struct {
	OnFetch         func(kind, outcome string)
	OnFetchDuration func(seconds float64)
	OnDocxFallback  func()
	OnSearch        func(outcome string)
}

func (h Hooks) fetch(kind, outcome string) {
	if h.OnFetch != nil {
		h.OnFetch(kind, outcome)
	}
}

func (h Hooks) search(outcome string) {
	if h.OnSearch != nil {
		h.OnSearch(outcome)
	}
}

type Handler struct {
	fetcher    Fetcher
	searcher   Searcher
	cache      SectionCache
	maxResults int
	hooks      Hooks
}

type Option func(*Handler)

func WithMaxResults(n int) Option {
	return func(h *Handler) { h.maxResults = n }
}

func WithHooks(hooks Hooks) Option {
	return func(h *Handler) { h.hooks = hooks }
}

func New(fetcher Fetcher, searcher Searcher, cache SectionCache, opts ...Option) *Handler {
	h := &Handler{
		fetcher:    fetcher,
		searcher:   searcher,
		cache:      cache,
		maxResults: 10,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes mounts the API under the caller's router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/fetch", h.handleFetch)
	r.Get("/search", h.handleSearch)
	return r
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := r.URL.Query().Get("url")

	if raw == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	if !h.fetcher.AllowedURL(raw) {
		writeError(w, http.StatusBadRequest, "url must be a municode.com address")
		return
	}

	if sec, ok := h.cache.Get(ctx, raw); ok {
		writeJSON(w, http.StatusOK, sec)
		return
	}

	start := time.Now()
	sec, err := h.fetchSection(ctx, raw)
	if h.hooks.OnFetchDuration != nil {
		h.hooks.OnFetchDuration(time.Since(start).Seconds())
	}
	if err != nil {
		log.FromContext(ctx).Warn(ctx, "section fetch failed",
			"url.full", raw,
			"error", err.Error(),
		)
		writeError(w, statusForFetchError(err), "could not retrieve ordinance text from upstream")
		return
	}

	h.cache.Put(ctx, raw, sec)
	writeJSON(w, http.StatusOK, sec)
}

// fetchSection retrieves and extracts one section. HTML pages that come
// back as the Municode SPA shell fall back to the page's Word export.
func (h *Handler) fetchSection(ctx context.Context, raw string) (*ordinance.Section, error) {
	if municode.IsDocxURL(raw) {
		return h.fetchDocx(ctx, raw)
	}

	body, _, err := h.fetcher.FetchBytes(ctx, raw)
	if err != nil {
		h.hooks.fetch("html", "error")
		return nil, err
	}

	sec, err := ordinance.FromHTML(body, raw)
	if err != nil {
		h.hooks.fetch("html", "parse_error")
		return nil, err
	}

	if !ordinance.IsPlaceholder(sec.Text) {
		h.hooks.fetch("html", "ok")
		return sec, nil
	}

	// SPA shell: the rendered page has no ordinance text for non-browser
	// clients, but usually links a Word export that does.
	if h.hooks.OnDocxFallback != nil {
		h.hooks.OnDocxFallback()
	}
	docxURL := ordinance.FindDocxLink(body, raw)
	if docxURL == "" {
		h.hooks.fetch("html", "placeholder")
		return sec, nil
	}

	fallback, err := h.fetchDocx(ctx, docxURL)
	if err != nil {
		// the export is an enrichment; when it fails, the shell section
		// is still the best answer we have
		log.FromContext(ctx).Warn(ctx, "docx fallback failed, serving page text",
			"url.full", raw,
			"docx.url", docxURL,
			"error", err.Error(),
		)
		return sec, nil
	}
	// report the URL the caller asked for, not the export blob
	fallback.URL = raw
	return fallback, nil
}

func (h *Handler) fetchDocx(ctx context.Context, raw string) (*ordinance.Section, error) {
	body, _, err := h.fetcher.FetchBytes(ctx, raw)
	if err != nil {
		h.hooks.fetch("docx", "error")
		return nil, err
	}
	sec, err := ordinance.FromDocx(body, raw)
	if err != nil {
		h.hooks.fetch("docx", "parse_error")
		return nil, err
	}
	h.hooks.fetch("docx", "ok")
	return sec, nil
}

type searchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	limit := h.maxResults
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}

	results, err := h.searcher.Search(ctx, q, limit)
	if err != nil {
		h.hooks.search("error")
		log.FromContext(ctx).Warn(ctx, "search failed", "query", q, "error", err.Error())
		writeError(w, statusForFetchError(err), "search upstream unavailable")
		return
	}

	h.hooks.search("ok")
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: results})
}

// statusForFetchError maps upstream failures to 502 and timeouts to 504.
func statusForFetchError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civiclab/ordinance-api/internal/health"
	"github.com/civiclab/ordinance-api/internal/httpmw"
	"github.com/civiclab/ordinance-api/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes mounts the ordinance API under /api.
	APIRoutes func(chi.Router)

	// AuthMW guards /api routes only; health endpoints stay open.
	AuthMW func(http.Handler) http.Handler

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions
	CORSOrigins  []string

	UseRecoverMW bool
	OnPanic      func()

	// MaxBodyBytes caps request bodies; the API is GET-only so this
	// stays small.
	MaxBodyBytes int64
}

// Package cfg defines the server configuration surface and its
// flag/env binding. Precedence: cli flag > env var > default.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/civiclab/ordinance-api/internal/log"
)

type App struct {
	LogJSON   bool
	LogLevel  string
	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	TrustedHops int
	CORSOrigins string

	APIKey         string
	APIKeySSMParam string

	RateLimitWindow     time.Duration
	RateLimitMax        int
	RateLimitMaxClients int

	MunicodeHost    string
	SearchSite      string
	FetchTimeout    time.Duration
	OutboundRPS     float64
	OutboundBurst   int
	SearchMaxResult int

	CacheTTL        time.Duration
	CacheMaxEntries int
	CacheS3Bucket   string
	CacheS3Prefix   string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies in front of the server (0 = direct)")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "", "comma-separated allowed CORS origins (empty = CORS disabled, * = any)")
	fs.StringVar(&c.APIKey, "api-key", "", "static API key required on /api routes (empty = auth disabled unless SSM param set)")
	fs.StringVar(&c.APIKeySSMParam, "api-key-ssm-param", "", "SSM parameter name to load the API key from at startup")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", time.Minute, "sliding window length for the per-IP rate limiter")
	fs.IntVar(&c.RateLimitMax, "rate-limit-max", 60, "max requests per client IP within the sliding window")
	fs.IntVar(&c.RateLimitMaxClients, "rate-limit-max-clients", 100000, "max distinct client IPs tracked by the rate limiter")
	fs.StringVar(&c.MunicodeHost, "municode-host", "municode.com", "registrable domain fetches are restricted to")
	fs.StringVar(&c.SearchSite, "search-site", "library.municode.com/tx/portland", "site restriction applied to keyword searches")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", 15*time.Second, "per-request timeout for upstream fetches")
	fs.Float64Var(&c.OutboundRPS, "outbound-rps", 2, "max sustained outbound requests per second to upstreams")
	fs.IntVar(&c.OutboundBurst, "outbound-burst", 4, "outbound request burst allowance")
	fs.IntVar(&c.SearchMaxResult, "search-max-results", 10, "max results returned by the search endpoint (1..50)")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", 15*time.Minute, "TTL for parsed sections in the in-memory cache")
	fs.IntVar(&c.CacheMaxEntries, "cache-max-entries", 4096, "max entries in the in-memory section cache")
	fs.StringVar(&c.CacheS3Bucket, "cache-s3-bucket", "", "S3 bucket for the persistent section cache (empty = disabled)")
	fs.StringVar(&c.CacheS3Prefix, "cache-s3-prefix", "ordinance-api/sections", "S3 key prefix for the persistent section cache")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log level
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	if c.APIKey != "" && c.APIKeySSMParam != "" {
		errs = append(errs, fmt.Errorf("API_KEY and API_KEY_SSM_PARAM are mutually exclusive"))
	}

	// Rate limiter
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive (got %s)", c.RateLimitWindow))
	}
	if c.RateLimitMax < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be >= 1 (got %d)", c.RateLimitMax))
	}
	if c.RateLimitMaxClients < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_CLIENTS must be >= 1 (got %d)", c.RateLimitMaxClients))
	}

	// Upstream
	if c.MunicodeHost == "" {
		errs = append(errs, fmt.Errorf("MUNICODE_HOST is required"))
	}
	if c.SearchSite == "" {
		errs = append(errs, fmt.Errorf("SEARCH_SITE is required"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive (got %s)", c.FetchTimeout))
	}
	if c.OutboundRPS <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOUND_RPS must be positive (got %.2f)", c.OutboundRPS))
	}
	if c.OutboundBurst < 1 {
		errs = append(errs, fmt.Errorf("OUTBOUND_BURST must be >= 1 (got %d)", c.OutboundBurst))
	}
	if c.SearchMaxResult < 1 || c.SearchMaxResult > 50 {
		errs = append(errs, fmt.Errorf("SEARCH_MAX_RESULTS must be 1..50 (got %d)", c.SearchMaxResult))
	}

	// Cache
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be positive (got %s)", c.CacheTTL))
	}
	if c.CacheMaxEntries < 1 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_ENTRIES must be >= 1 (got %d)", c.CacheMaxEntries))
	}
	if c.CacheS3Bucket != "" && c.CacheS3Prefix == "" {
		errs = append(errs, fmt.Errorf("CACHE_S3_PREFIX is required when CACHE_S3_BUCKET is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CORSOriginList splits the comma-separated cors-origins flag into a slice,
// trimming whitespace and dropping empty entries.
func (c App) CORSOriginList() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

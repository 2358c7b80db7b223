package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-chi/chi/v5"

	"github.com/civiclab/ordinance-api/internal/apikey"
	"github.com/civiclab/ordinance-api/internal/cache"
	"github.com/civiclab/ordinance-api/internal/cfg"
	"github.com/civiclab/ordinance-api/internal/health"
	"github.com/civiclab/ordinance-api/internal/httpmw"
	"github.com/civiclab/ordinance-api/internal/httpserver"
	"github.com/civiclab/ordinance-api/internal/log"
	"github.com/civiclab/ordinance-api/internal/metrics"
	"github.com/civiclab/ordinance-api/internal/municode"
	"github.com/civiclab/ordinance-api/internal/opshttp"
	"github.com/civiclab/ordinance-api/internal/ordhttp"
	"github.com/civiclab/ordinance-api/internal/otelx"
	"github.com/civiclab/ordinance-api/internal/prof"
	"github.com/civiclab/ordinance-api/internal/ratelimit"
	"github.com/civiclab/ordinance-api/internal/search"
	v "github.com/civiclab/ordinance-api/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix ORDAPI_ and validate
	cfg.FillFromEnv(flag.CommandLine, "ORDAPI_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Version:    vi.Version,
		Commit:     vi.Commit,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildID,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trusted_hops", conf.TrustedHops,
		"rate_limit_window", conf.RateLimitWindow.String(),
		"rate_limit_max", conf.RateLimitMax,
		"municode_host", conf.MunicodeHost,
		"search_site", conf.SearchSite,
		"cache_ttl", conf.CacheTTL.String(),
		"cache_s3_bucket", conf.CacheS3Bucket,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we only write to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	// AWS clients are only needed when the S3 cache tier or the SSM key
	// source is configured.
	var (
		s3Client  *s3.Client
		ssmClient *ssm.Client
	)
	if conf.CacheS3Bucket != "" || conf.APIKeySSMParam != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		if conf.CacheS3Bucket != "" {
			s3Client = s3.NewFromConfig(awsCfg)
		}
		if conf.APIKeySSMParam != "" {
			ssmClient = ssm.NewFromConfig(awsCfg)
		}
	}

	// Resolve the API key
	key := conf.APIKey
	if conf.APIKeySSMParam != "" {
		key, err = apikey.FromSSM(ctx, ssmClient, conf.APIKeySSMParam)
		if err != nil {
			L.Error(ctx, err, "failed to resolve API key from SSM", "param", conf.APIKeySSMParam)
			os.Exit(1)
		}
		L.Info(ctx, "api key loaded from SSM", "param", conf.APIKeySSMParam)
	}
	verifier := apikey.New(key)
	if !verifier.Enabled() {
		L.Warn(ctx, "no api key configured, /api routes are unauthenticated")
	}

	// Section cache: memory tier, optionally backed by S3
	mem := cache.NewMemory(
		cache.WithTTL(conf.CacheTTL),
		cache.WithMaxEntries(conf.CacheMaxEntries),
		cache.WithOnSize(m.SetCacheEntries),
	)
	cacheOpts := []cache.Option{
		cache.WithLogger(L),
		cache.WithOnHit(m.IncCacheHit),
		cache.WithOnMiss(m.IncCacheMiss),
	}
	if s3Client != nil {
		cacheOpts = append(cacheOpts, cache.WithS3(
			cache.NewS3Store(s3Client, conf.CacheS3Bucket, conf.CacheS3Prefix),
		))
		L.Info(ctx, "s3 cache tier enabled",
			"bucket", conf.CacheS3Bucket,
			"prefix", conf.CacheS3Prefix,
		)
	}
	sectionCache := cache.New(mem, cacheOpts...)
	go sectionCache.Sweep(ctx)

	// Outbound clients
	fetcher := municode.New(conf.MunicodeHost,
		municode.WithTimeout(conf.FetchTimeout),
		municode.WithRate(conf.OutboundRPS, conf.OutboundBurst),
	)
	searcher := search.New(conf.SearchSite,
		search.WithTimeout(conf.FetchTimeout),
		search.WithRate(conf.OutboundRPS, conf.OutboundBurst),
	)

	api := ordhttp.New(fetcher, searcher, sectionCache,
		ordhttp.WithMaxResults(conf.SearchMaxResult),
		ordhttp.WithHooks(ordhttp.Hooks{
			OnFetch:         m.IncFetch,
			OnFetchDuration: m.ObserveFetchDuration,
			OnDocxFallback:  m.IncDocxFallback,
			OnSearch:        m.IncSearch,
		}),
	)

	// toggle for server shutdown
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	// Per-IP rate limiter on the public listener
	limiter := ratelimit.New(ctx,
		ratelimit.WithLimit(conf.RateLimitMax, conf.RateLimitWindow),
		ratelimit.WithMaxVisitors(conf.RateLimitMaxClients),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first denial per tracked visitor
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	apiHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes: func(r chi.Router) {
			r.Mount("/ordinances", api.Routes())
		},
		AuthMW:       verifier.Middleware(m.IncAuthFailed),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		CORSOrigins:  conf.CORSOriginList(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = apiHTTPStop(context.Background()) }()

	// admin/ops listener for metrics, health checks, pprof
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal
	sigCtx, stopSig := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSig()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer drains us before we close
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := apiHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "api http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when started with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}

// Package municode is the outbound HTTP client for library.municode.com.
// All upstream traffic goes through here so politeness limits, timeouts,
// and size caps apply uniformly.
package municode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/civiclab/ordinance-api/internal/log"
	"github.com/civiclab/ordinance-api/internal/xerrors"
)

const defaultUserAgent = "ordinance-api/1.0 (+municipal code fetcher)"

// UpstreamError reports a failed upstream exchange. Handlers map it to 502.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	host      string
	maxBody   int64
	userAgent string
}

type Option func(*Client)

// WithRate caps sustained outbound request rate and burst.
func WithRate(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMaxBody caps the bytes read from any upstream response.
func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client restricted to the given registrable domain
// (e.g. "municode.com"). Requests to any other host are refused.
func New(host string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:   rate.NewLimiter(rate.Limit(2), 4),
		host:      strings.ToLower(host),
		maxBody:   8 << 20,
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AllowedURL reports whether raw is an http(s) URL on the client's domain
// or one of its subdomains.
func (c *Client) AllowedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h == c.host || strings.HasSuffix(h, "."+c.host)
}

// IsDocxURL reports whether raw points at a Word document.
func IsDocxURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".docx")
}

// FetchBytes retrieves raw at most maxBody bytes, honoring the politeness
// limiter. It returns the body and the Content-Type header. Non-2xx
// responses and oversized bodies come back as *UpstreamError.
func (c *Client) FetchBytes(ctx context.Context, raw string) ([]byte, string, error) {
	if !c.AllowedURL(raw) {
		return nil, "", xerrors.Newf("url %q is not on %s", raw, c.host)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", xerrors.Wrap(err, "outbound limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, "", xerrors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/vnd.openxmlformats-officedocument.wordprocessingml.document,*/*")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &UpstreamError{URL: raw, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &UpstreamError{URL: raw, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, "", &UpstreamError{URL: raw, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, "", &UpstreamError{URL: raw, Err: xerrors.Newf("response exceeds %d bytes", c.maxBody)}
	}

	log.FromContext(ctx).Debug(ctx, "upstream fetch",
		"url.full", raw,
		"http.response.status_code", resp.StatusCode,
		"http.response.body.size", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return body, resp.Header.Get("Content-Type"), nil
}

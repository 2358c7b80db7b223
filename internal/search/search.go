// Package search finds ordinance pages by keyword. Municode has no public
// search API, so queries go through the DuckDuckGo HTML endpoint with a
// site: restriction and results are filtered back to the Municode library.
package search

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/civiclab/ordinance-api/internal/xerrors"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	endpoint string
	site     string
}

type Option func(*Client)

func WithEndpoint(u string) Option {
	return func(c *Client) { c.endpoint = u }
}

func WithRate(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a search client restricted to the given site, e.g.
// "library.municode.com/tx/portland".
func New(site string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:  rate.NewLimiter(rate.Limit(1), 2),
		endpoint: defaultEndpoint,
		site:     site,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search runs a site-restricted keyword query and returns up to limit
// results that point back into the restricted site.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, xerrors.New("empty query")
	}
	if limit < 1 {
		limit = 10
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, xerrors.Wrap(err, "search limiter")
	}

	q := url.Values{}
	q.Set("q", "site:"+c.site+" "+query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, xerrors.Wrap(err, "build search request")
	}
	req.Header.Set("User-Agent", "ordinance-api/1.0 (+municipal code fetcher)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(err, "search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, xerrors.Newf("search upstream returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, xerrors.Wrap(err, "read search response")
	}

	results := parseResults(body)

	siteHost := c.site
	if i := strings.IndexByte(siteHost, '/'); i >= 0 {
		siteHost = siteHost[:i]
	}

	out := results[:0]
	for _, r := range results {
		u, err := url.Parse(r.URL)
		if err != nil || !strings.EqualFold(u.Hostname(), siteHost) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// parseResults extracts result anchors and snippets from the DuckDuckGo
// HTML response. Result links carry class "result__a", snippets
// "result__snippet".
func parseResults(raw []byte) []Result {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var class, href string
			for _, a := range n.Attr {
				switch a.Key {
				case "class":
					class = a.Val
				case "href":
					href = a.Val
				}
			}
			switch {
			case strings.Contains(class, "result__a"):
				results = append(results, Result{
					Title: collapseSpace(anchorText(n)),
					URL:   unwrapRedirect(href),
				})
			case strings.Contains(class, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = collapseSpace(anchorText(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg=<encoded> indirection to
// the destination URL.
func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if !strings.HasSuffix(u.Path, "/l/") {
		return href
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		return dest
	}
	return href
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

const ddgPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Flibrary.municode.com%2Ftx%2Fportland%2Fcodes%2Fcode_of_ordinances%3FnodeId%3DCH110TR&amp;rut=abc">
    Sec. 110-363. Truck routes
  </a>
  <a class="result__snippet" href="#">Trucks over ten thousand pounds must use designated routes.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/unrelated">Unrelated result</a>
  <a class="result__snippet" href="#">Noise from another site.</a>
</div>
<div class="result">
  <a class="result__a" href="https://library.municode.com/tx/portland/codes/code_of_ordinances?nodeId=CH26">Chapter 26 Offenses</a>
</div>
</body></html>`

func testServer(t *testing.T, page string) (*Client, *string) {
	t.Helper()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)
	c := New("library.municode.com/tx/portland", WithEndpoint(srv.URL+"/html/"))
	return c, &gotQuery
}

func TestSearch_SiteRestrictedQuery(t *testing.T) {
	c, gotQuery := testServer(t, ddgPage)

	if _, err := c.Search(context.Background(), "truck routes", 10); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if want := "site:library.municode.com/tx/portland truck routes"; *gotQuery != want {
		t.Fatalf("query = %q, want %q", *gotQuery, want)
	}
}

func TestSearch_UnwrapsAndFilters(t *testing.T) {
	c, _ := testServer(t, ddgPage)

	results, err := c.Search(context.Background(), "truck routes", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (foreign host dropped): %+v", len(results), results)
	}

	first := results[0]
	if !strings.HasPrefix(first.URL, "https://library.municode.com/tx/portland/") {
		t.Errorf("redirect not unwrapped: %q", first.URL)
	}
	if u, _ := url.Parse(first.URL); u.Query().Get("nodeId") != "CH110TR" {
		t.Errorf("unwrapped URL lost query: %q", first.URL)
	}
	if first.Title != "Sec. 110-363. Truck routes" {
		t.Errorf("Title = %q", first.Title)
	}
	if !strings.Contains(first.Snippet, "ten thousand pounds") {
		t.Errorf("Snippet = %q", first.Snippet)
	}
}

func TestSearch_LimitApplied(t *testing.T) {
	c, _ := testServer(t, ddgPage)

	results, err := c.Search(context.Background(), "anything", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	c, _ := testServer(t, ddgPage)
	if _, err := c.Search(context.Background(), "   ", 10); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearch_UpstreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("library.municode.com/tx/portland", WithEndpoint(srv.URL+"/html/"))
	if _, err := c.Search(context.Background(), "x", 10); err == nil {
		t.Fatal("expected error for non-200 upstream")
	}
}

func TestUnwrapRedirect(t *testing.T) {
	got := unwrapRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Flibrary.municode.com%2Fx&rut=abc")
	if got != "https://library.municode.com/x" {
		t.Fatalf("got %q", got)
	}
	direct := "https://library.municode.com/y"
	if unwrapRedirect(direct) != direct {
		t.Fatal("direct links should pass through")
	}
}

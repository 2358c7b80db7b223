package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("request ID not generated")
	}
	if len(seen) != 32 {
		t.Fatalf("request ID %q is not 16 hex bytes", seen)
	}
	if got := w.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("response header %q != context id %q", got, seen)
	}
}

func TestRequestID_PropagatesExisting(t *testing.T) {
	var seen string
	h := RequestID("X-Request-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "upstream-id-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if seen != "upstream-id-123" {
		t.Fatalf("seen = %q, want upstream id", seen)
	}
	if got := w.Header().Get("X-Request-Id"); got != "upstream-id-123" {
		t.Fatalf("echoed header = %q", got)
	}
}

func TestRequestIDFromContext_EmptyWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDFromContext(r.Context()); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

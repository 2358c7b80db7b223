package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func appendMW(s *[]string, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*s = append(*s, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}),
		appendMW(&order, "a"),
		appendMW(&order, "b"),
		appendMW(&order, "c"),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"a", "b", "c", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChain_NilMiddlewareSkipped(t *testing.T) {
	called := false
	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
		nil,
		nil,
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("handler not reached through nil middlewares")
	}
}

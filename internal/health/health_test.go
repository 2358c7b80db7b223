package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civiclab/ordinance-api/internal/xerrors"
)

func TestFixed(t *testing.T) {
	if err := Fixed(true, "").Check(context.Background()); err != nil {
		t.Fatalf("Fixed(true) = %v, want nil", err)
	}
	err := Fixed(false, "down for maintenance").Check(context.Background())
	if err == nil || err.Error() != "down for maintenance" {
		t.Fatalf("Fixed(false) = %v", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, empty reason) = %v, want unhealthy", err)
	}
}

func TestAll(t *testing.T) {
	pass := CheckFunc(func(context.Context) error { return nil })
	fail := CheckFunc(func(context.Context) error { return xerrors.New("nope") })

	if err := All(pass, nil, pass).Check(context.Background()); err != nil {
		t.Fatalf("All(pass) = %v", err)
	}
	if err := All(pass, fail).Check(context.Background()); err == nil {
		t.Fatal("All with a failing probe should fail")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("fresh gate should pass: %v", err)
	}

	g.Set("draining")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("gate set: err = %v, want draining", err)
	}

	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared gate should pass: %v", err)
	}
}

func TestHealthzHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler(Fixed(true, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy: got %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthzHandler(Fixed(false, "broken")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: got %d, want 503", rec.Code)
	}
}

func TestReadyzHandler_NilProbePasses(t *testing.T) {
	rec := httptest.NewRecorder()
	ReadyzHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("nil probe: got %d, want 200", rec.Code)
	}
}

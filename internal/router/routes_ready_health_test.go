package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/service"
)

// fakeDownloadSvc is a stub to satisfy service.Download in router tests.
type fakeDownloadSvc struct{}

func (f *fakeDownloadSvc) List(ctx context.Context) (data.Downloads, error) { return nil, nil }
func (f *fakeDownloadSvc) Get(ctx context.Context, id string) (*data.Download, error) { return nil, data.ErrNotFound }
func (f *fakeDownloadSvc) Add(ctx context.Context, req service.AddRequest) (*data.Download, error) {
	return nil, data.ErrInvalidSource
}
func (f *fakeDownloadSvc) UpdateDesiredStatus(ctx context.Context, id string, status service.DesiredStatus) (*data.Download, error) {
	return nil, data.ErrNotFound
}
func (f *fakeDownloadSvc) Delete(ctx context.Context, id string) error { return data.ErrNotFound }
func (f *fakeDownloadSvc) Watch(ctx context.Context) (<-chan data.Downloads, error) {
	ch := make(chan data.Downloads)
	close(ch)
	return ch, nil
}
func (f *fakeDownloadSvc) Progress(ctx context.Context, id string) (<-chan data.Progress, error) {
	return nil, data.ErrNotFound
}
func (f *fakeDownloadSvc) Restore(ctx context.Context) (int, error) { return 0, nil }

var _ service.Download = (*fakeDownloadSvc)(nil)

// fakePinger allows toggling readiness.
type fakePinger struct{ pingErr error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.pingErr }

func TestHealthzOK(t *testing.T) {
	r := New(slog.Default(), &fakeDownloadSvc{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "ok" {
		t.Fatalf("expected body 'ok', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
}

func TestReadyzSuccess(t *testing.T) {
	r := New(slog.Default(), &fakeDownloadSvc{}, Options{Ready: &fakePinger{}})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestReadyzFailure(t *testing.T) {
	r := New(slog.Default(), &fakeDownloadSvc{}, Options{Ready: &fakePinger{pingErr: errors.New("nope")}})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	r := New(slog.Default(), &fakeDownloadSvc{}, Options{Token: "sekrit"})
	req := httptest.NewRequest(http.MethodGet, "/v1/downloads", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

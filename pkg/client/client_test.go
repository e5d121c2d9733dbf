package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	v1 "github.com/tinoosan/quip/api/v1"
	"github.com/tinoosan/quip/internal/downloader"
	"github.com/tinoosan/quip/internal/downloader/httpdl"
	"github.com/tinoosan/quip/internal/reconciler"
	"github.com/tinoosan/quip/internal/repo"
	"github.com/tinoosan/quip/internal/router"
	"github.com/tinoosan/quip/internal/service"
	"github.com/tinoosan/quip/internal/transport"
	"github.com/tinoosan/quip/pkg/client"
)

const token = "sekrit"

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rpo := repo.NewInMemoryDownloadRepo()
	events := make(chan downloader.Event, 64)
	dir := t.TempDir()
	eng, err := httpdl.New(transport.NewClient(transport.Options{}), downloader.NewChanReporter(events), httpdl.Options{Dir: dir, BufferSize: 512, Logger: logger})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	rec := reconciler.New(logger, rpo, events, time.Millisecond)
	rec.Run()
	srv := httptest.NewServer(router.New(logger, service.NewDownload(rpo, eng), router.Options{Token: token}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Close(ctx)
		rec.Stop()
	})
	return srv, dir
}

func TestDownloadStreamsProgressToCompletion(t *testing.T) {
	srv, dir := newServer(t)
	payload := bytes.Repeat([]byte("0123456789"), 10_000)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "f", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(src.Close)

	c, err := client.New(srv.URL, token, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var updates []v1.ProgressView
	d, err := c.Download(ctx, src.URL+"/f", func(p v1.ProgressView) { updates = append(updates, p) })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if d.Status != "Completed" || d.BytesTransferred != int64(len(payload)) {
		t.Fatalf("unexpected final view %+v", d)
	}
	if len(updates) == 0 || updates[len(updates)-1].Status != "Completed" {
		t.Fatalf("expected progress ending in Completed, got %+v", updates)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].BytesTransferred < updates[i-1].BytesTransferred {
			t.Fatalf("progress went backwards: %+v then %+v", updates[i-1], updates[i])
		}
	}
	got, err := os.ReadFile(filepath.Join(dir, d.FileName))
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("output file mismatch: %v", err)
	}

	list, err := c.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one download, got %d (%v)", len(list), err)
	}
	if err := c.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestClientErrors(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()

	bad, _ := client.New(srv.URL, "wrong", nil)
	_, err := bad.List(ctx)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 APIError got %v", err)
	}

	c, _ := client.New(srv.URL, token, nil)
	if _, err := c.Get(ctx, "missing"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError got %v", err)
	}
	if _, err := c.SetDesiredStatus(ctx, "missing", "Queued"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError got %v", err)
	}
	if _, err := c.Add(ctx, client.AddRequest{URL: "file:///etc/passwd"}); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError got %v", err)
	}
	if _, err := client.New("ftp://host", token, nil); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestDownloadReportsFailedAttempt(t *testing.T) {
	srv, _ := newServer(t)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(src.Close)

	c, _ := client.New(srv.URL, token, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	d, err := c.Download(ctx, src.URL+"/f", nil)
	var dlErr *client.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("expected failure to end the call promptly, took %v", time.Since(start))
	}
	if dlErr.Status != "Pending" || !strings.Contains(dlErr.Message, "500") {
		t.Fatalf("unexpected error %+v", dlErr)
	}
	if d == nil || d.Status != "Pending" || d.Error == "" {
		t.Fatalf("expected resumable pending view with error got %+v", d)
	}
}

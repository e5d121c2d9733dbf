package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tinoosan/quip/internal/data"
)

func newDownload(id string, at time.Time) *data.Download {
	return &data.Download{
		ID:        id,
		URL:       "http://example.com/" + id,
		FileName:  id + ".bin",
		Headers:   map[string]string{"User-Agent": "quip"},
		Progress:  data.Progress{Status: data.StatusPending},
		CreatedAt: at,
	}
}

func TestInMemoryDownloadRepo_Upsert(t *testing.T) {
	repo := NewInMemoryDownloadRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	d := newDownload("a", now)
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	d.Progress = data.Progress{BytesTransferred: 10, TotalBytes: 100, Status: data.StatusDownloading}
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	got, err := repo.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Progress.BytesTransferred != 10 || got.Progress.Status != data.StatusDownloading {
		t.Fatalf("expected replaced progress got %+v", got.Progress)
	}
	list, _ := repo.List(ctx)
	if len(list) != 1 {
		t.Fatalf("expected 1 download got %d", len(list))
	}
}

func TestInMemoryDownloadRepo_List(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryDownloadRepo()

	// empty repo
	list, _ := repo.List(ctx)
	if got := len(list); got != 0 {
		t.Fatalf("expected empty list, got %d", got)
	}

	now := time.Now().UTC()
	_ = repo.Upsert(ctx, newDownload("b", now.Add(time.Second)))
	_ = repo.Upsert(ctx, newDownload("a", now))

	list1, _ := repo.List(ctx)
	if len(list1) != 2 {
		t.Fatalf("expected 2 downloads, got %d", len(list1))
	}
	if list1[0].ID != "a" {
		t.Fatalf("expected oldest first got %s", list1[0].ID)
	}

	// modify returned slice
	list1[0].Headers["User-Agent"] = "changed"
	list1 = append(list1, &data.Download{ID: "z"})

	list2, _ := repo.List(ctx)
	if len(list2) != 2 {
		t.Fatalf("expected 2 downloads after modification, got %d", len(list2))
	}
	if list2[0].Headers["User-Agent"] != "quip" {
		t.Fatalf("stored download was mutated through List result")
	}
}

func TestInMemoryDownloadRepo_Get(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryDownloadRepo()
	want := newDownload("a", time.Now().UTC())
	_ = repo.Upsert(ctx, want)

	tests := []struct {
		name    string
		repo    *InMemoryDownloadRepo
		id      string
		want    *data.Download
		wantErr error
	}{
		{"exists", repo, "a", want, nil},
		{"not found", repo, "missing", nil, data.ErrNotFound},
		{"empty repo", NewInMemoryDownloadRepo(), "a", nil, data.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.repo.Get(ctx, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil {
				if !reflect.DeepEqual(*got, *tt.want) {
					t.Fatalf("mismatch:\n got:  %#v\n want: %#v", got, tt.want)
				}
			}
		})
	}
}

func TestInMemoryDownloadRepo_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryDownloadRepo()
	_ = repo.Upsert(ctx, newDownload("a", time.Now()))
	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, "a"); !errors.Is(err, data.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestInMemoryDownloadRepo_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := NewInMemoryDownloadRepo()
	ch, err := repo.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	if first := <-ch; len(first) != 0 {
		t.Fatalf("expected empty initial list got %d", len(first))
	}
	_ = repo.Upsert(ctx, newDownload("a", time.Now()))
	select {
	case list := <-ch:
		if len(list) != 1 || list[0].ID != "a" {
			t.Fatalf("unexpected list %+v", list)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no update after write")
	}
	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("watch channel not closed")
		}
	}
}

func TestInMemoryDownloadRepo_Concurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryDownloadRepo()
	const n = 50
	var wg sync.WaitGroup

	// reader goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			repo.List(ctx)
			repo.Get(ctx, fmt.Sprint(i))
		}
	}()

	// concurrent writers
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Upsert(ctx, newDownload(fmt.Sprint(i), time.Now())); err != nil {
				t.Errorf("Upsert error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	list, _ := repo.List(ctx)

	if got := len(list); got != n {
		t.Fatalf("expected %d downloads, got %d", n, got)
	}
}

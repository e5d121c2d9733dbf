package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/tinoosan/quip/internal/data"
)

type InMemoryDownloadRepo struct {
	mu        sync.RWMutex
	downloads map[string]*data.Download
	hub       watchHub
}

var _ DownloadRepo = (*InMemoryDownloadRepo)(nil)

func NewInMemoryDownloadRepo() *InMemoryDownloadRepo {
	return &InMemoryDownloadRepo{downloads: make(map[string]*data.Download)}
}

func (r *InMemoryDownloadRepo) List(ctx context.Context) (data.Downloads, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(), nil
}

func (r *InMemoryDownloadRepo) Get(ctx context.Context, id string) (*data.Download, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.downloads[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	return d.Clone(), nil
}

func (r *InMemoryDownloadRepo) Create(ctx context.Context, d *data.Download) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.downloads[d.ID]; ok {
		return data.ErrConflict
	}
	r.downloads[d.ID] = d.Clone()
	r.hub.broadcast(r.list())
	return nil
}

func (r *InMemoryDownloadRepo) Upsert(ctx context.Context, d *data.Download) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[d.ID] = d.Clone()
	r.hub.broadcast(r.list())
	return nil
}

func (r *InMemoryDownloadRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.downloads[id]; !ok {
		return data.ErrNotFound
	}
	delete(r.downloads, id)
	r.hub.broadcast(r.list())
	return nil
}

func (r *InMemoryDownloadRepo) Watch(ctx context.Context) (<-chan data.Downloads, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hub.subscribe(ctx, r.list()), nil
}

// list must be called with r.mu held.
func (r *InMemoryDownloadRepo) list() data.Downloads {
	out := make(data.Downloads, 0, len(r.downloads))
	for _, d := range r.downloads {
		out = append(out, d.Clone())
	}
	sortDownloads(out)
	return out
}

// sortDownloads orders by creation time, oldest first.
func sortDownloads(ds data.Downloads) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].ID < ds[j].ID
		}
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}

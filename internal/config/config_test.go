package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got %+v", cfg)
	}

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected :9090 got %q", cfg.Server.Addr)
	}
	if cfg.Engine.MaxRetry != 3 || cfg.Engine.NameLength != 10 || cfg.Engine.BufferSize != 32*1024 {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Repo.Driver != "sqlite" {
		t.Fatalf("expected sqlite got %q", cfg.Repo.Driver)
	}
	if cfg.Reconcile.ProgressInterval != time.Second {
		t.Fatalf("expected 1s got %v", cfg.Reconcile.ProgressInterval)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quip.yaml")
	yaml := []byte("server:\n  addr: \":8081\"\nengine:\n  max_retry: 5\n  collision_policy: error\n  http_timeout: 30s\nstorage:\n  dir: /srv/files\n")
	if err := os.WriteFile(path, yaml, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("QUIP_ENGINE_MAX_RETRY", "7")
	t.Setenv("QUIP_API_TOKEN", "sekrit")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8081" || cfg.Storage.Dir != "/srv/files" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Engine.MaxRetry != 7 {
		t.Fatalf("env should override file, got %d", cfg.Engine.MaxRetry)
	}
	if cfg.Engine.CollisionPolicy != "error" || cfg.Engine.HTTPTimeout != 30*time.Second {
		t.Fatalf("unexpected engine config %+v", cfg.Engine)
	}
	if cfg.Auth.Token != "sekrit" {
		t.Fatalf("expected token from QUIP_API_TOKEN got %q", cfg.Auth.Token)
	}
}

func TestLoadPostgresDSNFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUIP_REPO_DRIVER", "postgres")
	t.Setenv("QUIP_REPO_DSN", "")
	t.Setenv("POSTGRES_HOST", "db")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := "postgres://quip:@db:5432/quip?sslmode=disable"
	if cfg.Repo.DSN != want {
		t.Fatalf("expected %s got %s", want, cfg.Repo.DSN)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Repo: RepoConfig{Driver: "mysql"}, Storage: StorageConfig{Dir: "x"}}
	if err := cfg.Validate(); !errors.Is(err, ErrRepoDriver) {
		t.Fatalf("expected ErrRepoDriver got %v", err)
	}
	cfg = &Config{Repo: RepoConfig{Driver: "memory"}}
	if err := cfg.Validate(); !errors.Is(err, ErrStorageDir) {
		t.Fatalf("expected ErrStorageDir got %v", err)
	}
}

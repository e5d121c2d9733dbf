package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tinoosan/quip/internal/config"
	"github.com/tinoosan/quip/internal/downloadcfg"
	"github.com/tinoosan/quip/internal/downloader"
	"github.com/tinoosan/quip/internal/downloader/httpdl"
	"github.com/tinoosan/quip/internal/logging"
	"github.com/tinoosan/quip/internal/metrics"
	"github.com/tinoosan/quip/internal/reconciler"
	"github.com/tinoosan/quip/internal/repo"
	"github.com/tinoosan/quip/internal/router"
	"github.com/tinoosan/quip/internal/service"
	"github.com/tinoosan/quip/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "quip:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	lg := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	}, os.Stdout)
	defer lg.Close()
	logger := lg.Logger

	metrics.Register()

	store, ready, closeStore, err := openRepo(cfg.Repo)
	if err != nil {
		return fmt.Errorf("open %s repo: %w", cfg.Repo.Driver, err)
	}
	defer closeStore()

	events := make(chan downloader.Event, 256)
	client := transport.NewClient(transport.Options{
		MaxRetry: cfg.Engine.MaxRetry,
		Timeout:  cfg.Engine.HTTPTimeout,
	})
	engine, err := httpdl.New(client, downloader.NewChanReporter(events), httpdl.Options{
		Dir:           cfg.Storage.Dir,
		BufferSize:    cfg.Engine.BufferSize,
		NameLength:    cfg.Engine.NameLength,
		Policy:        downloadcfg.ParseCollisionPolicy(cfg.Engine.CollisionPolicy),
		RangeRequests: cfg.Engine.RangeRequests,
		Logger:        logger.With("component", "engine"),
	})
	if err != nil {
		return err
	}

	rec := reconciler.New(logger.With("component", "reconciler"), store, events, cfg.Reconcile.ProgressInterval)
	rec.Run()

	svc := service.NewDownload(store, engine)
	if n, err := svc.Restore(context.Background()); err != nil {
		logger.Error("restore downloads", "err", err)
	} else if n > 0 {
		logger.Info("marked interrupted downloads as paused", "count", n)
	}

	if cfg.Auth.Token == "" {
		logger.Warn("no API token configured; every /v1 request will be rejected")
	}
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.New(logger, svc, router.Options{Ready: ready, Token: cfg.Auth.Token}),
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting quip", "addr", server.Addr, "dir", cfg.Storage.Dir, "repo", cfg.Repo.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received terminate, graceful shutdown", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	// Running transfers become Paused so they resume after a restart.
	if err := engine.Close(ctx); err != nil {
		logger.Error("engine shutdown", "err", err)
	}
	rec.Stop()
	return nil
}

// openRepo returns the task store, its readiness probe (nil for memory) and
// a close func.
func openRepo(c config.RepoConfig) (repo.DownloadRepo, repo.Pinger, func(), error) {
	switch c.Driver {
	case "memory":
		return repo.NewInMemoryDownloadRepo(), nil, func() {}, nil
	case "sqlite":
		r, err := repo.NewSQLiteRepo(c.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return r, r, func() { _ = r.Close() }, nil
	case "postgres":
		r, err := repo.NewPostgresRepo(c.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return r, r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, nil, config.ErrRepoDriver
	}
}

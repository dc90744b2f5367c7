// Package app assembles a collector from a validated config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/syftsync/internal/collect"
	"github.com/openmined/syftsync/internal/config"
	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/backends"
	"github.com/openmined/syftsync/internal/strategy"
)

var ErrPurgeUnsupported = errors.New("cache backend does not support purge")

type App struct {
	config    *config.Config
	cache     hashcache.Cache
	backend   storage.Backend
	collector *collect.Collector
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	sources := make([]collect.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := collect.OpenSource(sc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	finder, err := collect.NewFinder(sources, cfg.Ignore, cfg.Include)
	if err != nil {
		return nil, fmt.Errorf("failed to create finder: %w", err)
	}

	slog.Debug("syftsync storage", "config", cfg.Storage)
	backend, err := backends.Open(&cfg.Storage, cfg.MultipartChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	cache, err := hashcache.Open(ctx, &cfg.Cache)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to open hash cache: %w", err)
	}

	keep := append([]string{}, cfg.Keep...)
	var post []collect.PostProcessor
	if cfg.Manifest != "" {
		post = append(post, collect.NewManifest(backend, cfg.Manifest).WithCache(cache, cfg.Cache.Prefix()))
		keep = append(keep, cfg.Manifest)
	}

	deps := strategy.Deps{
		Cache:       cache,
		KeyPrefix:   cfg.Cache.Prefix(),
		Compression: cfg.Compression,
		ChunkSize:   cfg.MultipartChunkSize,
		Threads:     cfg.Threads,
		Debug:       cfg.Debug,
	}

	collector := collect.New(collect.Options{
		Backend: backend,
		Finder:  finder,
		LoadStrategy: func() (strategy.Strategy, error) {
			return strategy.Load(cfg.Strategy, backend, deps)
		},
		PostProcessors: post,
		Compression:    cfg.Compression,
		Cache:          cache,
		KeyPrefix:      deps.KeyPrefix,
		Threads:        cfg.Threads,
		Enabled:        cfg.Enabled,
		Debug:          cfg.Debug,
		Keep:           keep,
	})

	return &App{
		config:    cfg,
		cache:     cache,
		backend:   backend,
		collector: collector,
	}, nil
}

// Collect runs one collection against the configured storage.
func (a *App) Collect(ctx context.Context, opts collect.RunOptions) (*collect.Result, error) {
	slog.Info("syftsync collect", "storage", a.backend.Kind(), "location", a.backend.Location(), "cache", a.config.Cache.Backend, "strategy", a.config.Strategy)
	return a.collector.Run(ctx, opts)
}

func (a *App) Backend() storage.Backend {
	return a.backend
}

func (a *App) Cache() hashcache.Cache {
	return a.cache
}

func (a *App) Close() error {
	return errors.Join(a.backend.Close(), a.cache.Close())
}

// PurgeCache drops expired entries from the configured sqlite cache, or every
// entry when all is set. It does not touch storage.
func PurgeCache(ctx context.Context, cfg *hashcache.Config, all bool) (int64, error) {
	if cfg.Backend != hashcache.BackendSqlite {
		return 0, fmt.Errorf("%w: %s", ErrPurgeUnsupported, cfg.Backend)
	}
	cache, err := hashcache.NewSqliteCache(cfg.Path, cfg.TTL)
	if err != nil {
		return 0, err
	}
	defer cache.Close()
	return cache.Purge(ctx, all)
}

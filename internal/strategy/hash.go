package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
)

type memoKey struct {
	source string
	path   string
}

// HashStrategy copies a file when its local hash differs from the hash the
// backend reports. Nothing is remembered beyond the run.
type HashStrategy struct {
	backend storage.Backend
	fetcher RemoteFetcher
	hasher  *hasher.Hasher
	threads int
	debug   bool

	mu   sync.Mutex
	memo map[memoKey]string
}

var _ Strategy = (*HashStrategy)(nil)

type HashOptions struct {
	Hasher *hasher.Hasher
	// Threads > 0 resets the worker's backend client before each decision.
	Threads int
	// Debug propagates remote lookup errors instead of treating the object
	// as absent.
	Debug bool
}

func NewHashStrategy(backend storage.Backend, fetcher RemoteFetcher, opts HashOptions) *HashStrategy {
	h := opts.Hasher
	if h == nil {
		h = hasher.New(hasher.Options{})
	}
	return &HashStrategy{
		backend: backend,
		fetcher: fetcher,
		hasher:  h,
		threads: opts.Threads,
		debug:   opts.Debug,
		memo:    make(map[memoKey]string),
	}
}

func (s *HashStrategy) Backend() storage.Backend {
	return s.backend
}

func (s *HashStrategy) PreCollectHook(ctx context.Context) error {
	if pc, ok := s.fetcher.(preCollector); ok {
		return pc.PreCollect(ctx)
	}
	return nil
}

func (s *HashStrategy) PreShouldCopyHook(ctx context.Context) {
	if s.threads <= 0 {
		return
	}
	if r, ok := s.backend.(storage.ClientResetter); ok {
		r.ResetClient(ctx)
	}
}

func (s *HashStrategy) ShouldCopyFile(ctx context.Context, path, prefixedPath string, src *storage.LocalSource) (bool, error) {
	local, err := s.LocalHash(ctx, path, src)
	if err != nil {
		return true, err
	}
	remote, found, err := s.RemoteHash(ctx, prefixedPath)
	if err != nil {
		return true, err
	}
	return !found || local != remote, nil
}

func (s *HashStrategy) PostCopyHook(context.Context, string, string, *storage.LocalSource) {}

func (s *HashStrategy) OnSkipHook(context.Context, string, string, *storage.LocalSource) {}

func (s *HashStrategy) IsDeleteNotFound(err error) bool {
	if d, ok := s.fetcher.(interface{ IsDeleteNotFound(error) bool }); ok {
		return d.IsDeleteNotFound(err)
	}
	return isNotFound(err)
}

// LocalHash hashes path once per source for the lifetime of the strategy.
func (s *HashStrategy) LocalHash(ctx context.Context, path string, src *storage.LocalSource) (string, error) {
	key := memoKey{source: src.Name, path: path}

	s.mu.Lock()
	h, ok := s.memo[key]
	s.mu.Unlock()
	if ok {
		return h, nil
	}

	h, err := s.hasher.Hash(ctx, src.FS, path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.memo[key] = h
	s.mu.Unlock()
	return h, nil
}

// RemoteHash asks the backend for the stored digest. Lookup failures read as
// an absent object unless the strategy runs in debug mode.
func (s *HashStrategy) RemoteHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	h, found, err := s.fetcher.FetchHash(ctx, prefixedPath)
	if err != nil {
		key := s.fetcher.NormalizePath(prefixedPath)
		if s.debug {
			return "", false, fmt.Errorf("fetch remote hash %s: %w", key, err)
		}
		slog.Debug("strategy remote hash", "key", key, "error", err)
		return "", false, nil
	}
	return h, found, nil
}

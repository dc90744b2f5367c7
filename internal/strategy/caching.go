package strategy

import (
	"context"
	"log/slog"

	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/storage"
)

// CachingStrategy remembers remote hashes in a hashcache.Cache so unchanged
// files need no backend round trip. Entries are dropped as soon as a copy is
// decided and re-primed with the local hash once the copy went through.
type CachingStrategy struct {
	base   *HashStrategy
	cache  hashcache.Cache
	prefix string
}

var _ Strategy = (*CachingStrategy)(nil)

func NewCachingStrategy(base *HashStrategy, cache hashcache.Cache, prefix string) *CachingStrategy {
	if cache == nil {
		cache = hashcache.NoneCache{}
	}
	if prefix == "" {
		prefix = hashcache.DefaultKeyPrefix
	}
	return &CachingStrategy{base: base, cache: cache, prefix: prefix}
}

func (s *CachingStrategy) Base() *HashStrategy {
	return s.base
}

// CacheKey is keyed by storage name so sources mounted under different
// prefixes never share an entry.
func (s *CachingStrategy) CacheKey(prefixedPath string) string {
	return hashcache.Key(s.prefix, prefixedPath)
}

func (s *CachingStrategy) PreCollectHook(ctx context.Context) error {
	return s.base.PreCollectHook(ctx)
}

func (s *CachingStrategy) PreShouldCopyHook(ctx context.Context) {
	s.base.PreShouldCopyHook(ctx)
}

func (s *CachingStrategy) ShouldCopyFile(ctx context.Context, path, prefixedPath string, src *storage.LocalSource) (bool, error) {
	local, err := s.base.LocalHash(ctx, path, src)
	if err != nil {
		s.InvalidateCachedHash(ctx, prefixedPath)
		return true, err
	}
	remote, err := s.cachedRemoteHash(ctx, prefixedPath)
	if err != nil {
		s.InvalidateCachedHash(ctx, prefixedPath)
		return true, err
	}
	if local != remote {
		// the object is about to be overwritten
		s.InvalidateCachedHash(ctx, prefixedPath)
		return true, nil
	}
	return false, nil
}

// cachedRemoteHash returns "" for an absent object.
func (s *CachingStrategy) cachedRemoteHash(ctx context.Context, prefixedPath string) (string, error) {
	key := s.CacheKey(prefixedPath)
	h, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("strategy cache get", "path", prefixedPath, "error", err)
	} else if ok {
		return h, nil
	}

	h, found, err := s.base.RemoteHash(ctx, prefixedPath)
	if err != nil {
		return "", err
	}
	if !found {
		h = ""
	}
	if err := s.cache.Set(ctx, key, h); err != nil {
		slog.Debug("strategy cache set", "path", prefixedPath, "error", err)
	}
	return h, nil
}

func (s *CachingStrategy) PostCopyHook(ctx context.Context, path, prefixedPath string, src *storage.LocalSource) {
	s.base.PostCopyHook(ctx, path, prefixedPath, src)
	local, err := s.base.LocalHash(ctx, path, src)
	if err != nil {
		slog.Warn("strategy post copy", "path", path, "error", err)
		return
	}
	if err := s.cache.Set(ctx, s.CacheKey(prefixedPath), local); err != nil {
		slog.Warn("strategy cache set", "path", prefixedPath, "error", err)
	}
}

func (s *CachingStrategy) OnSkipHook(ctx context.Context, path, prefixedPath string, src *storage.LocalSource) {
	s.base.OnSkipHook(ctx, path, prefixedPath, src)
}

func (s *CachingStrategy) IsDeleteNotFound(err error) bool {
	return s.base.IsDeleteNotFound(err)
}

func (s *CachingStrategy) InvalidateCachedHash(ctx context.Context, prefixedPath string) {
	if err := s.cache.Delete(ctx, s.CacheKey(prefixedPath)); err != nil {
		slog.Warn("strategy cache delete", "path", prefixedPath, "error", err)
	}
}

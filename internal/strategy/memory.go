package strategy

import (
	"context"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/memstore"
	"github.com/openmined/syftsync/internal/utils"
)

const NameMemory = "memory"

func init() {
	Register(NameMemory, newMemoryStrategy)
}

type memoryFetcher struct {
	backend *memstore.Backend
}

func (f *memoryFetcher) NormalizePath(prefixedPath string) string {
	return utils.JoinKey(f.backend.Location(), prefixedPath)
}

func (f *memoryFetcher) FetchHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	etag, err := f.backend.ETag(ctx, prefixedPath)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return etag, true, nil
}

func newMemoryStrategy(backend storage.Backend, deps Deps) (Strategy, error) {
	b, ok := backend.(*memstore.Backend)
	if !ok {
		return nil, wrongBackend(NameMemory, backend)
	}
	deps.ChunkSize = b.ChunkSize()
	base := NewHashStrategy(b, &memoryFetcher{backend: b}, HashOptions{
		Hasher:  hasher.New(deps.hasherOptions(b, b.ChunkSize() > 0, true)),
		Threads: deps.Threads,
		Debug:   deps.Debug,
	})
	return NewCachingStrategy(base, deps.Cache, deps.KeyPrefix), nil
}

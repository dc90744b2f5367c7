package strategy

import (
	"context"
	"errors"
	"io/fs"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/fsstore"
)

const (
	NameFilesystem        = "filesystem"
	NameFilesystemCaching = "filesystem-caching"
)

func init() {
	Register(NameFilesystem, newFilesystemStrategy)
	Register(NameFilesystemCaching, newFilesystemCachingStrategy)
}

// fsFetcher hashes the stored file itself. Stored bytes are already in their
// final (possibly gzipped) form so they are hashed as-is.
type fsFetcher struct {
	backend *fsstore.Backend
	raw     *hasher.Hasher
}

func newFSFetcher(b *fsstore.Backend) *fsFetcher {
	return &fsFetcher{backend: b, raw: hasher.New(hasher.Options{})}
}

func (f *fsFetcher) NormalizePath(prefixedPath string) string {
	return f.backend.Path(prefixedPath)
}

func (f *fsFetcher) FetchHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	h, err := f.raw.Hash(ctx, f.backend.FS(), storageName(prefixedPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return h, true, nil
}

func newFilesystemBase(name string, backend storage.Backend, deps Deps, caching bool) (*HashStrategy, error) {
	b, ok := backend.(*fsstore.Backend)
	if !ok {
		return nil, wrongBackend(name, backend)
	}
	return NewHashStrategy(b, newFSFetcher(b), HashOptions{
		Hasher:  hasher.New(deps.hasherOptions(b, false, caching)),
		Threads: deps.Threads,
		Debug:   deps.Debug,
	}), nil
}

func newFilesystemStrategy(backend storage.Backend, deps Deps) (Strategy, error) {
	return newFilesystemBase(NameFilesystem, backend, deps, false)
}

func newFilesystemCachingStrategy(backend storage.Backend, deps Deps) (Strategy, error) {
	base, err := newFilesystemBase(NameFilesystemCaching, backend, deps, true)
	if err != nil {
		return nil, err
	}
	return NewCachingStrategy(base, deps.Cache, deps.KeyPrefix), nil
}

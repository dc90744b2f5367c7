package strategy

import (
	"context"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/gcsstore"
)

const NameGCS = "gcs"

func init() {
	Register(NameGCS, newGCSStrategy)
}

type gcsFetcher struct {
	backend *gcsstore.Backend
}

func (f *gcsFetcher) NormalizePath(prefixedPath string) string {
	return f.backend.Key(prefixedPath)
}

func (f *gcsFetcher) FetchHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	sum, err := f.backend.MD5(ctx, prefixedPath)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return hasher.NormalizeDigest(sum), true, nil
}

// GCS always reports the md5 of the whole object, so local files are hashed
// unchunked.
func newGCSStrategy(backend storage.Backend, deps Deps) (Strategy, error) {
	b, ok := backend.(*gcsstore.Backend)
	if !ok {
		return nil, wrongBackend(NameGCS, backend)
	}
	base := NewHashStrategy(b, &gcsFetcher{backend: b}, HashOptions{
		Hasher:  hasher.New(deps.hasherOptions(b, false, true)),
		Threads: deps.Threads,
		Debug:   deps.Debug,
	})
	return NewCachingStrategy(base, deps.Cache, deps.KeyPrefix), nil
}

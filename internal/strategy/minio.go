package strategy

import (
	"context"

	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/miniostore"
)

const NameMinio = "minio"

func init() {
	Register(NameMinio, newMinioStrategy)
}

type minioFetcher struct {
	backend *miniostore.Backend
}

func (f *minioFetcher) NormalizePath(prefixedPath string) string {
	return f.backend.Key(prefixedPath)
}

func (f *minioFetcher) FetchHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	etag, err := f.backend.ETag(ctx, prefixedPath)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return etag, true, nil
}

func newMinioStrategy(backend storage.Backend, deps Deps) (Strategy, error) {
	b, ok := backend.(*miniostore.Backend)
	if !ok {
		return nil, wrongBackend(NameMinio, backend)
	}
	return newChunkedCaching(b, &minioFetcher{backend: b}, b.ChunkSize(), deps), nil
}

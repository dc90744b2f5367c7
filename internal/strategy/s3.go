package strategy

import (
	"context"
	"sync"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/s3store"
)

const (
	NameS3        = "s3"
	NameS3Listing = "s3-listing"
)

func init() {
	Register(NameS3, newS3Strategy)
	Register(NameS3Listing, newS3ListingStrategy)
}

// s3Fetcher issues one HeadObject per file.
type s3Fetcher struct {
	backend *s3store.Backend
}

func (f *s3Fetcher) NormalizePath(prefixedPath string) string {
	return f.backend.Key(prefixedPath)
}

func (f *s3Fetcher) FetchHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	etag, err := f.backend.ETag(ctx, prefixedPath)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return etag, true, nil
}

// s3ListingFetcher lists the bucket once per run and answers every lookup
// from that listing. Objects written by someone else during the run are not
// seen.
type s3ListingFetcher struct {
	s3Fetcher

	mu    sync.RWMutex
	etags map[string]string
}

func (f *s3ListingFetcher) PreCollect(ctx context.Context) error {
	etags, err := f.backend.ListETags(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.etags = etags
	f.mu.Unlock()
	return nil
}

func (f *s3ListingFetcher) FetchHash(ctx context.Context, prefixedPath string) (string, bool, error) {
	f.mu.RLock()
	etags := f.etags
	f.mu.RUnlock()
	if etags == nil {
		return f.s3Fetcher.FetchHash(ctx, prefixedPath)
	}
	etag, ok := etags[storageName(prefixedPath)]
	return etag, ok, nil
}

func newS3Strategy(backend storage.Backend, deps Deps) (Strategy, error) {
	b, ok := backend.(*s3store.Backend)
	if !ok {
		return nil, wrongBackend(NameS3, backend)
	}
	return newChunkedCaching(b, &s3Fetcher{backend: b}, b.ChunkSize(), deps), nil
}

func newS3ListingStrategy(backend storage.Backend, deps Deps) (Strategy, error) {
	b, ok := backend.(*s3store.Backend)
	if !ok {
		return nil, wrongBackend(NameS3Listing, backend)
	}
	return newChunkedCaching(b, &s3ListingFetcher{s3Fetcher: s3Fetcher{backend: b}}, b.ChunkSize(), deps), nil
}

// newChunkedCaching hashes local files in the same parts the backend uploads.
func newChunkedCaching(backend storage.Backend, fetcher RemoteFetcher, chunkSize int64, deps Deps) *CachingStrategy {
	deps.ChunkSize = chunkSize
	base := NewHashStrategy(backend, fetcher, HashOptions{
		Hasher:  hasher.New(deps.hasherOptions(backend, true, true)),
		Threads: deps.Threads,
		Debug:   deps.Debug,
	})
	return NewCachingStrategy(base, deps.Cache, deps.KeyPrefix)
}

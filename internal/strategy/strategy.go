// Package strategy decides whether a local file has to be copied to the
// storage backend or already matches what is stored there.
package strategy

import (
	"context"
	"errors"

	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
)

var ErrImproperlyConfigured = errors.New("improperly configured")

// Strategy is consulted once per file by the collector.
//
// path is the logical path inside the local source, prefixedPath the storage
// name the file is saved under.
type Strategy interface {
	// PreCollectHook runs once before any file is dispatched.
	PreCollectHook(ctx context.Context) error
	// PreShouldCopyHook runs before every ShouldCopyFile, on the goroutine
	// that will make the decision.
	PreShouldCopyHook(ctx context.Context)
	// ShouldCopyFile reports whether the file is stale remotely. An error
	// comes with copy=true; callers may copy anyway.
	ShouldCopyFile(ctx context.Context, path, prefixedPath string, src *storage.LocalSource) (bool, error)
	PostCopyHook(ctx context.Context, path, prefixedPath string, src *storage.LocalSource)
	OnSkipHook(ctx context.Context, path, prefixedPath string, src *storage.LocalSource)
	// IsDeleteNotFound reports whether a Delete error only means the object
	// was already gone.
	IsDeleteNotFound(err error) bool
}

// RemoteFetcher is the backend specific half of a hash strategy.
type RemoteFetcher interface {
	// NormalizePath maps a storage name to the key the backend reports.
	NormalizePath(prefixedPath string) string
	// FetchHash returns the canonical digest of the stored object. found is
	// false when there is no object.
	FetchHash(ctx context.Context, prefixedPath string) (hash string, found bool, err error)
}

// preCollector is implemented by fetchers that load remote state in bulk.
type preCollector interface {
	PreCollect(ctx context.Context) error
}

// Deps carries what a strategy factory needs besides the backend.
type Deps struct {
	Cache       hashcache.Cache
	KeyPrefix   string
	Compression hasher.Compression
	ChunkSize   int64
	Threads     int
	Debug       bool
}

func (d Deps) hasherOptions(backend storage.Backend, chunked, caching bool) hasher.Options {
	opts := hasher.Options{
		Chunked:     chunked,
		ChunkSize:   d.ChunkSize,
		UseGzip:     backend.GzipEnabled() && d.Compression.Enabled,
		Compression: d.Compression,
		KeyPrefix:   d.KeyPrefix,
	}
	if caching {
		opts.Cache = d.Cache
	}
	return opts
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// storageName is the slash separated form backends key objects by.
func storageName(prefixedPath string) string {
	return utils.JoinKey("", prefixedPath)
}

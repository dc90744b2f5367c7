// Package hashcache stores previously observed remote content hashes so a
// sync run can decide "unchanged" without asking the storage backend.
package hashcache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
)

// DefaultKeyPrefix is versioned; bump it to orphan every existing entry.
const DefaultKeyPrefix = "syftsync01_asset_"

var ErrUnknownBackend = errors.New("unknown hash cache backend")

// Cache is a concurrency-safe key/value store for content hashes.
//
// Get reports a miss with ok=false. A hit may carry the empty string, which
// records that the remote object was absent when it was last looked up.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key derives the cache key for a storage path. The path is hashed so keys
// stay short and free of characters the backing store may reject.
func Key(prefix, path string) string {
	sum := md5.Sum([]byte(path))
	return prefix + hex.EncodeToString(sum[:])
}

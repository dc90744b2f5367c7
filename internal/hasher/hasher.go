// Package hasher computes the local content hash that is compared against the
// digest a storage backend reports for the same object.
package hasher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/openmined/syftsync/internal/hashcache"
)

// ErrLocalIO marks a local file that could not be read. Callers copy the file
// rather than fail the run.
var ErrLocalIO = errors.New("local file unreadable")

type Options struct {
	// Chunked hashes in ChunkSize parts to match multipart uploads.
	Chunked   bool
	ChunkSize int64
	// UseGzip is set when the backend stores compressible files gzipped.
	UseGzip     bool
	Compression Compression
	// Cache, when set, remembers the gzip variant of a file keyed by its
	// uncompressed hash so unchanged files are not recompressed.
	Cache     hashcache.Cache
	KeyPrefix string
}

type Hasher struct {
	opts Options
}

func New(opts Options) *Hasher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = hashcache.DefaultKeyPrefix
	}
	return &Hasher{opts: opts}
}

func (h *Hasher) ChunkSize() int64 {
	return h.opts.ChunkSize
}

// Digest hashes bytes exactly as they would be stored remotely.
func (h *Hasher) Digest(data []byte) string {
	if h.opts.Chunked {
		return MultipartETag(data, h.opts.ChunkSize)
	}
	return MD5Hex(data)
}

// Hash returns the hash the remote copy of path should report.
func (h *Hasher) Hash(ctx context.Context, src fs.FS, path string) (string, error) {
	data, err := fs.ReadFile(src, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrLocalIO, path, err)
	}

	if !h.opts.UseGzip || !h.opts.Compression.Applies(path, data) {
		return h.Digest(data), nil
	}
	return h.gzipHash(ctx, path, data)
}

func (h *Hasher) gzipHash(ctx context.Context, path string, data []byte) (string, error) {
	var key string
	if h.opts.Cache != nil {
		key = hashcache.Key(h.opts.KeyPrefix, h.variantName(MD5Hex(data)))
		if v, ok, err := h.opts.Cache.Get(ctx, key); err != nil {
			slog.Debug("hasher gzip cache", "path", path, "error", err)
		} else if ok && v != "" {
			return v, nil
		}
	}

	gz, err := Gzip(data, h.opts.Compression.Level)
	if err != nil {
		return "", fmt.Errorf("gzip %s: %w", path, err)
	}
	sum := h.Digest(gz)

	if h.opts.Cache != nil {
		if err := h.opts.Cache.Set(ctx, key, sum); err != nil {
			slog.Debug("hasher gzip cache", "path", path, "error", err)
		}
	}
	return sum, nil
}

// the variant depends on everything that changes the compressed digest
func (h *Hasher) variantName(plain string) string {
	chunk := int64(0)
	if h.opts.Chunked {
		chunk = h.opts.ChunkSize
	}
	return fmt.Sprintf("gzip_hash_%d_%d_%s", h.opts.Compression.Level, chunk, plain)
}

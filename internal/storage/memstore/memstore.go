// Package memstore keeps objects in process memory. It backs dry
// experiments and the sync engine tests.
package memstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
)

type StoredObject struct {
	Data            []byte
	ContentType     string
	ContentEncoding string
}

type Backend struct {
	mu        sync.Mutex
	location  string
	gzip      bool
	chunkSize int64
	objects   map[string]*StoredObject
	saves     map[string]int
	lookups   int

	// ETagErr, when set, fails every ETag lookup.
	ETagErr error
	// DeleteErr, when set, fails every Delete.
	DeleteErr error
}

var _ storage.Backend = (*Backend)(nil)

type Option func(*Backend)

func WithLocation(location string) Option {
	return func(b *Backend) { b.location = location }
}

func WithGzip() Option {
	return func(b *Backend) { b.gzip = true }
}

// WithChunkSize makes ETag report multipart digests like S3 does.
func WithChunkSize(n int64) Option {
	return func(b *Backend) { b.chunkSize = n }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]*StoredObject),
		saves:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Kind() string      { return storage.KindMemory }
func (b *Backend) Location() string  { return b.location }
func (b *Backend) GzipEnabled() bool { return b.gzip }
func (b *Backend) ChunkSize() int64  { return b.chunkSize }

func (b *Backend) key(name string) string {
	return utils.JoinKey(b.location, name)
}

func (b *Backend) Save(ctx context.Context, name string, obj *storage.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := b.key(name)
	b.objects[key] = &StoredObject{
		Data:            data,
		ContentType:     obj.ContentType,
		ContentEncoding: obj.ContentEncoding,
	}
	b.saves[key]++
	return nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	key := b.key(name)
	if _, ok := b.objects[key]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	delete(b.objects, key)
	return nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.objects))
	for key := range b.objects {
		if name, ok := utils.TrimKeyLocation(b.location, key); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ETag returns the digest of the stored bytes, or storage.ErrNotFound.
func (b *Backend) ETag(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups++
	if b.ETagErr != nil {
		return "", b.ETagErr
	}
	obj, ok := b.objects[b.key(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	if b.chunkSize > 0 {
		return hasher.MultipartETag(obj.Data, b.chunkSize), nil
	}
	return hasher.MD5Hex(obj.Data), nil
}

// Put stores data directly, bypassing save accounting.
func (b *Backend) Put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[b.key(name)] = &StoredObject{Data: data}
}

func (b *Backend) Get(name string) (*StoredObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[b.key(name)]
	return obj, ok
}

// Saves reports how often name was written through Save.
func (b *Backend) Saves(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves[b.key(name)]
}

func (b *Backend) TotalSaves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.saves {
		n += c
	}
	return n
}

// Lookups reports how many ETag calls reached the backend.
func (b *Backend) Lookups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lookups
}

func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func (b *Backend) Close() error {
	return nil
}

package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/storage"
)

const manifestVersion = 1

var ErrManifestCollision = errors.New("manifest name collides with a collected file")

// PostProcessor runs once per run after every file was dispatched. files is
// keyed by storage name. It returns how many files it processed.
type PostProcessor interface {
	PostProcess(ctx context.Context, files map[string]Task, dryRun bool) (int, error)
}

type manifestDoc struct {
	Version   int                      `json:"version"`
	Generated time.Time                `json:"generated"`
	Files     map[string]manifestEntry `json:"files"`
}

type manifestEntry struct {
	Source string `json:"source"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
}

// Manifest uploads a JSON index of every collected file next to them.
type Manifest struct {
	backend   storage.Backend
	name      string
	cache     hashcache.Cache
	keyPrefix string
	now       func() time.Time
}

var _ PostProcessor = (*Manifest)(nil)

func NewManifest(backend storage.Backend, name string) *Manifest {
	return &Manifest{
		backend:   backend,
		name:      name,
		cache:     hashcache.NoneCache{},
		keyPrefix: hashcache.DefaultKeyPrefix,
		now:       time.Now,
	}
}

// WithCache makes the manifest drop the cached hash of its own object before
// overwriting it.
func (m *Manifest) WithCache(cache hashcache.Cache, keyPrefix string) *Manifest {
	m.cache = cache
	m.keyPrefix = keyPrefix
	return m
}

// Name is the storage name the manifest is saved under.
func (m *Manifest) Name() string {
	return m.name
}

func (m *Manifest) PostProcess(ctx context.Context, files map[string]Task, dryRun bool) (int, error) {
	if t, ok := files[m.name]; ok {
		return 0, fmt.Errorf("%w: %s from source %q", ErrManifestCollision, m.name, t.Source.Name)
	}

	doc := manifestDoc{
		Version:   manifestVersion,
		Generated: m.now().UTC(),
		Files:     make(map[string]manifestEntry, len(files)),
	}
	for name, t := range files {
		doc.Files[name] = manifestEntry{Source: t.Source.Name, Path: t.Path, Size: t.Size}
	}

	if dryRun {
		slog.Info("Pretending to write manifest", "path", m.name, "files", len(files))
		return len(files), nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode manifest: %w", err)
	}
	if err := m.cache.Delete(ctx, hashcache.Key(m.keyPrefix, m.name)); err != nil {
		slog.Warn("collect cache delete", "path", m.name, "error", err)
	}
	err = m.backend.Save(ctx, m.name, &storage.Object{
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: "application/json",
	})
	if err != nil {
		return 0, fmt.Errorf("save manifest: %w", err)
	}
	slog.Info("collect", "op", "MANIFEST", "path", m.name, "files", len(files))
	return len(files), nil
}

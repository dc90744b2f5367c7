package collect

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest(t *testing.T) {
	backend := memstore.New()
	m := NewManifest(backend, "manifest.json")
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	src := &storage.LocalSource{Name: "static"}
	files := map[string]Task{
		"css/app.css": {Path: "app.css", PrefixedPath: "css/app.css", Source: src, Size: 10},
	}

	n, err := m.PostProcess(context.Background(), files, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, backend.Len())

	n, err = m.PostProcess(context.Background(), files, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	obj, ok := backend.Get("manifest.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)

	var doc manifestDoc
	require.NoError(t, json.Unmarshal(obj.Data, &doc))
	assert.Equal(t, manifestVersion, doc.Version)
	assert.Equal(t, manifestEntry{Source: "static", Path: "app.css", Size: 10}, doc.Files["css/app.css"])
	assert.True(t, doc.Generated.Equal(m.now()))
}

func TestManifest_DropsCachedHash(t *testing.T) {
	ctx := context.Background()
	backend := memstore.New()
	cache := hashcache.NewMemoryCache(0, 0)
	key := hashcache.Key("p_", "manifest.json")
	require.NoError(t, cache.Set(ctx, key, "stale"))

	m := NewManifest(backend, "manifest.json").WithCache(cache, "p_")
	_, err := m.PostProcess(ctx, map[string]Task{}, true)
	require.NoError(t, err)
	_, ok, _ := cache.Get(ctx, key)
	assert.True(t, ok, "dry run leaves the cache alone")

	_, err = m.PostProcess(ctx, map[string]Task{}, false)
	require.NoError(t, err)
	_, ok, _ = cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestRun_ManifestNameCollision(t *testing.T) {
	h := newHarness(t, map[string]string{"manifest.json": `{"mine":true}`, "app.css": "a{}"})
	h.opts.PostProcessors = []PostProcessor{NewManifest(h.backend, "manifest.json").WithCache(h.cache, hashcache.DefaultKeyPrefix)}

	_, err := New(h.opts).Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrManifestCollision)

	obj, ok := h.backend.Get("manifest.json")
	require.True(t, ok)
	assert.Equal(t, `{"mine":true}`, string(obj.Data), "local file is not overwritten by the manifest")
}

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/syftsync/internal/collect"
	"github.com/openmined/syftsync/internal/config"
	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func testConfig(t *testing.T) (*config.Config, string, string) {
	t.Helper()
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "css", "app.css"), "body{}")
	writeFile(t, filepath.Join(src, "js", "app.js"), "run()")

	cfg := config.Default()
	cfg.Sources = []collect.SourceConfig{{Name: "app", Dir: src, Prefix: "static"}}
	cfg.Strategy = strategy.NameFilesystemCaching
	cfg.Manifest = "static/manifest.json"
	cfg.Cache.Backend = hashcache.BackendSqlite
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.Storage.Filesystem.Root = dst
	require.NoError(t, cfg.Validate())
	return cfg, src, dst
}

func collectOnce(t *testing.T, cfg *config.Config, opts collect.RunOptions) *collect.Result {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	res, err := a.Collect(context.Background(), opts)
	require.NoError(t, err)
	return res
}

func TestApp_Collect(t *testing.T) {
	cfg, src, dst := testConfig(t)

	res := collectOnce(t, cfg, collect.RunOptions{})
	assert.Equal(t, 2, res.Copied)
	assert.Equal(t, 2, res.PostProcessed)
	data, err := os.ReadFile(filepath.Join(dst, "static", "css", "app.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))

	var manifest struct {
		Files map[string]json.RawMessage `json:"files"`
	}
	raw, err := os.ReadFile(filepath.Join(dst, "static", "manifest.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Contains(t, manifest.Files, "static/js/app.js")

	// a new process with the same sqlite cache
	res = collectOnce(t, cfg, collect.RunOptions{})
	assert.Equal(t, 0, res.Copied)
	assert.Equal(t, 2, res.Skipped)

	writeFile(t, filepath.Join(src, "js", "app.js"), "run(); run()")
	res = collectOnce(t, cfg, collect.RunOptions{})
	assert.Equal(t, 1, res.Copied)
	data, err = os.ReadFile(filepath.Join(dst, "static", "js", "app.js"))
	require.NoError(t, err)
	assert.Equal(t, "run(); run()", string(data))
}

func TestApp_ClearKeepsManifest(t *testing.T) {
	cfg, src, dst := testConfig(t)
	collectOnce(t, cfg, collect.RunOptions{})

	require.NoError(t, os.Remove(filepath.Join(src, "css", "app.css")))
	res := collectOnce(t, cfg, collect.RunOptions{Clear: true})
	assert.Equal(t, 1, res.Deleted)

	assert.NoFileExists(t, filepath.Join(dst, "static", "css", "app.css"))
	assert.FileExists(t, filepath.Join(dst, "static", "manifest.json"))
	assert.FileExists(t, filepath.Join(dst, "static", "js", "app.js"))
}

func TestApp_Disabled(t *testing.T) {
	cfg, _, _ := testConfig(t)
	cfg.Enabled = false

	for i := 0; i < 2; i++ {
		res := collectOnce(t, cfg, collect.RunOptions{})
		assert.Equal(t, 2, res.Copied)
	}
}

func TestApp_UnknownStrategy(t *testing.T) {
	cfg, _, _ := testConfig(t)
	cfg.Strategy = "nope"

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Collect(context.Background(), collect.RunOptions{})
	assert.ErrorIs(t, err, strategy.ErrImproperlyConfigured)
}

func TestPurgeCache(t *testing.T) {
	_, err := PurgeCache(context.Background(), &hashcache.Config{Backend: hashcache.BackendMemory}, true)
	assert.ErrorIs(t, err, ErrPurgeUnsupported)

	cfg := &hashcache.Config{Backend: hashcache.BackendSqlite, Path: filepath.Join(t.TempDir(), "cache.db")}
	cache, err := hashcache.NewSqliteCache(cfg.Path, 0)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), "a", "1"))
	require.NoError(t, cache.Set(context.Background(), "b", "2"))
	require.NoError(t, cache.Close())

	n, err := PurgeCache(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "entries without ttl never expire")

	n, err = PurgeCache(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestApp_ManifestCollisionFails(t *testing.T) {
	cfg, src, _ := testConfig(t)
	writeFile(t, filepath.Join(src, "manifest.json"), `{"own":true}`)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Collect(context.Background(), collect.RunOptions{})
	assert.ErrorIs(t, err, collect.ErrManifestCollision)
}

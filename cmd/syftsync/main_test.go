package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/syftsync/internal/app"
	"github.com/openmined/syftsync/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// execute runs a fresh root command and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stripANSI(stdout.String()), stripANSI(stderr.String()), err
}

type fixture struct {
	src, dst, config, lock string
}

func newFixture(t *testing.T, extra map[string]any) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		src:    filepath.Join(dir, "static"),
		dst:    filepath.Join(dir, "bucket"),
		config: filepath.Join(dir, "syftsync.json"),
		lock:   filepath.Join(dir, "syftsync.lock"),
	}
	for name, body := range map[string]string{"css/app.css": "body{}", "js/app.js": "run()"} {
		p := filepath.Join(f.src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	require.NoError(t, os.MkdirAll(f.dst, 0o755))

	doc := map[string]any{
		"sources":   []map[string]string{{"dir": f.src}},
		"lock_path": f.lock,
		"storage": map[string]any{
			"backend":    "filesystem",
			"filesystem": map[string]string{"root": f.dst},
		},
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.config, data, 0o644))
	return f
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Detailed(), strings.TrimSpace(out))
}

func TestCollectCommand(t *testing.T) {
	f := newFixture(t, nil)

	out, _, err := execute(t, "collect", "-c", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "2 file(s) copied, 0 skipped, 0 deleted.")
	assert.Regexp(t, `Collected in [0-9.]+[µnm]?s\.`, out)
	assert.FileExists(t, filepath.Join(f.dst, "css", "app.css"))
	assert.NoFileExists(t, f.lock, "lock released")

	out, _, err = execute(t, "collect", "-c", f.config, "--threads", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "0 file(s) copied, 2 skipped, 0 deleted.")

	out, _, err = execute(t, "collect", "-c", f.config, "--disable")
	require.NoError(t, err)
	assert.Contains(t, out, "2 file(s) copied")
}

func TestCollectCommand_DryRun(t *testing.T) {
	f := newFixture(t, nil)

	out, _, err := execute(t, "collect", "-c", f.config, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "[dry run] 2 file(s) copied")
	assert.NoFileExists(t, filepath.Join(f.dst, "css", "app.css"))
}

func TestCollectCommand_Clear(t *testing.T) {
	f := newFixture(t, nil)
	stale := filepath.Join(f.dst, "old.css")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	out, _, err := execute(t, "collect", "-c", f.config, "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "2 file(s) copied, 0 skipped, 1 deleted.")
	assert.NoFileExists(t, stale)
}

func TestCollectCommand_EnvOverride(t *testing.T) {
	f := newFixture(t, nil)
	t.Setenv("SYFTSYNC_STRATEGY", "nope")

	_, _, err := execute(t, "collect", "-c", f.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown strategy "nope"`)
}

func TestCollectCommand_InvalidConfig(t *testing.T) {
	f := newFixture(t, map[string]any{"threads": -2})

	_, _, err := execute(t, "collect", "-c", f.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.NoDirExists(t, filepath.Join(f.dst, "css"))
}

func TestCollectCommand_Locked(t *testing.T) {
	f := newFixture(t, nil)
	lock := app.NewLock(f.lock)
	require.NoError(t, lock.Acquire())
	defer lock.Release()

	_, _, err := execute(t, "collect", "-c", f.config)
	assert.ErrorIs(t, err, app.ErrLocked)
}

func TestCollectCommand_LogFile(t *testing.T) {
	f := newFixture(t, nil)
	logFile := filepath.Join(t.TempDir(), "logs", "syftsync.log")

	_, stderr, err := execute(t, "collect", "-c", f.config, "-v", "0", "--log-file", logFile)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "collect start", "info is below the console level")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "collect start")
	assert.Contains(t, string(data), "line=1")
}

func TestCachePurgeCommand(t *testing.T) {
	f := newFixture(t, map[string]any{
		"cache": map[string]any{"backend": "sqlite", "path": filepath.Join(t.TempDir(), "cache.db")},
	})

	_, _, err := execute(t, "collect", "-c", f.config, "--strategy", "filesystem-caching")
	require.NoError(t, err)

	out, _, err := execute(t, "cache", "purge", "-c", f.config, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 2 cache entries.")

	_, _, err = execute(t, "cache", "purge", "-c", newFixture(t, nil).config)
	assert.ErrorIs(t, err, app.ErrPurgeUnsupported)
}

func TestVerbosityLevel(t *testing.T) {
	assert.Equal(t, "WARN", verbosityLevel(0).String())
	assert.Equal(t, "INFO", verbosityLevel(1).String())
	assert.Equal(t, "DEBUG", verbosityLevel(3).String())
}

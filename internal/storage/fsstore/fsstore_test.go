package fsstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/syftsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func save(t *testing.T, b *Backend, name, body string) {
	t.Helper()
	require.NoError(t, b.Save(context.Background(), name, &storage.Object{
		Body: bytes.NewBufferString(body),
		Size: int64(len(body)),
	}))
}

func TestSaveListDelete(t *testing.T) {
	root := t.TempDir()
	b, err := New(&Config{Root: root}, "static")
	require.NoError(t, err)
	ctx := context.Background()

	names, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "missing location lists as empty")

	save(t, b, "css/app.css", "body{}")
	save(t, b, "index.html", "<html>")

	data, err := os.ReadFile(filepath.Join(root, "static", "css", "app.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))

	// overwrite in place
	save(t, b, "css/app.css", "body{margin:0}")
	data, err = os.ReadFile(b.Path("css/app.css"))
	require.NoError(t, err)
	assert.Equal(t, "body{margin:0}", string(data))

	names, err = b.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"css/app.css", "index.html"}, names)

	require.NoError(t, b.Delete(ctx, "index.html"))
	err = b.Delete(ctx, "index.html")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	b, err := New(&Config{Root: root}, "")
	require.NoError(t, err)

	save(t, b, "a.txt", "a")
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"+tempMarker+"123"), []byte("x"), 0o644))

	names, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)
}

func TestFS(t *testing.T) {
	b, err := New(&Config{Root: t.TempDir()}, "site")
	require.NoError(t, err)
	save(t, b, "js/app.js", "x()")

	data, err := b.FS().Open("js/app.js")
	require.NoError(t, err)
	data.Close()
	assert.Equal(t, storage.KindFilesystem, b.Kind())
	assert.False(t, b.GzipEnabled())
}

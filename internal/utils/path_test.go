package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	_, err := ResolvePath("")
	assert.Error(t, err)

	abs, err := ResolvePath("./static")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	abs, err = ResolvePath("~/static")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))
	assert.NotContains(t, abs, "~")
}

func TestEnsureParent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "cache.db")
	require.NoError(t, EnsureParent(target))
	assert.True(t, DirExists(filepath.Dir(target)))
	assert.False(t, FileExists(target))
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		location string
		name     string
		want     string
	}{
		{location: "", name: "css/app.css", want: "css/app.css"},
		{location: "static", name: "css/app.css", want: "static/css/app.css"},
		{location: "/static/", name: "/css/app.css", want: "static/css/app.css"},
		{location: "static", name: "css\\app.css", want: "static/css/app.css"},
		{location: "a\\b", name: "c.js", want: "a/b/c.js"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinKey(tt.location, tt.name), "%s + %s", tt.location, tt.name)
	}
}

func TestTrimKeyLocation(t *testing.T) {
	rel, ok := TrimKeyLocation("static", "static/css/app.css")
	assert.True(t, ok)
	assert.Equal(t, "css/app.css", rel)

	_, ok = TrimKeyLocation("static", "media/logo.png")
	assert.False(t, ok)

	rel, ok = TrimKeyLocation("", "media/logo.png")
	assert.True(t, ok)
	assert.Equal(t, "media/logo.png", rel)
}

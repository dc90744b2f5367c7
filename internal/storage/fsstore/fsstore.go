// Package fsstore stores objects as files under a local directory.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
)

// temp files are written next to their target and never listed
const tempMarker = ".syftsync.tmp."

type Config struct {
	Root string `mapstructure:"root"`
	Gzip bool   `mapstructure:"gzip"`
}

func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("storage.filesystem.root is required")
	}
	return nil
}

type Backend struct {
	root     string
	location string
	gzip     bool
}

var _ storage.Backend = (*Backend)(nil)

// New stores objects in root/location. The directory is created on first write.
func New(cfg *Config, location string) (*Backend, error) {
	root, err := utils.ResolvePath(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	return &Backend{
		root:     root,
		location: strings.Trim(utils.ToSlashKey(location), "/"),
		gzip:     cfg.Gzip,
	}, nil
}

func (b *Backend) Kind() string      { return storage.KindFilesystem }
func (b *Backend) Location() string  { return b.location }
func (b *Backend) GzipEnabled() bool { return b.gzip }

// Dir is the directory objects are stored in.
func (b *Backend) Dir() string {
	return filepath.Join(b.root, filepath.FromSlash(b.location))
}

// FS exposes the stored objects by storage name.
func (b *Backend) FS() fs.FS {
	return os.DirFS(b.Dir())
}

// Path maps a storage name to its file.
func (b *Backend) Path(name string) string {
	return filepath.Join(b.root, filepath.FromSlash(utils.JoinKey(b.location, name)))
}

func (b *Backend) Save(ctx context.Context, name string, obj *storage.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := b.Path(name)
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tempMarker+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, obj.Body); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}

	success = true
	return nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(b.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]string, error) {
	dir := b.Dir()
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.Contains(d.Name(), tempMarker) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return names, nil
}

func (b *Backend) Close() error {
	return nil
}

package collect

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// vcs
	".git/",
	".hg/",
	".svn/",
	// python
	"__pycache__/",
	"*.py[cod]",
	// editors
	".vscode/",
	".idea/",
	"*.swp",
	"*~",
	// general
	"*.tmp",
	// os
	".DS_Store",
	"Thumbs.db",
}

// SourceConfig names a local directory to collect. Prefix is prepended to
// every storage name found under Dir.
type SourceConfig struct {
	Name   string `mapstructure:"name"`
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

type Source struct {
	Local  *storage.LocalSource
	Prefix string
}

// OpenSource resolves cfg.Dir and exposes it as a Source.
func OpenSource(cfg SourceConfig) (Source, error) {
	dir, err := utils.ResolvePath(cfg.Dir)
	if err != nil {
		return Source{}, fmt.Errorf("resolve source %q: %w", cfg.Dir, err)
	}
	if !utils.DirExists(dir) {
		return Source{}, fmt.Errorf("source %q is not a directory", dir)
	}
	name := cfg.Name
	if name == "" {
		name = dir
	}
	return Source{
		Local:  &storage.LocalSource{Name: name, FS: os.DirFS(dir)},
		Prefix: cfg.Prefix,
	}, nil
}

// Task is one file to dispatch. Path is relative to the source, PrefixedPath
// is the storage name.
type Task struct {
	Path         string
	PrefixedPath string
	Source       *storage.LocalSource
	Size         int64
}

type TaskFinder interface {
	Find(ctx context.Context) ([]Task, error)
}

// Finder walks its sources in order. When two sources produce the same
// storage name the first one wins.
type Finder struct {
	sources []Source
	ignore  *gitignore.GitIgnore
	include []string
}

var _ TaskFinder = (*Finder)(nil)

// NewFinder skips paths matching the default ignore rules or ignore
// (gitignore syntax). A non-empty include keeps only paths matching one of
// its doublestar patterns.
func NewFinder(sources []Source, ignore, include []string) (*Finder, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}
	lines := append(append([]string{}, defaultIgnoreLines...), ignore...)
	return &Finder{
		sources: sources,
		ignore:  gitignore.CompileIgnoreLines(lines...),
		include: include,
	}, nil
}

func (f *Finder) Find(ctx context.Context) ([]Task, error) {
	var tasks []Task
	seen := make(map[string]string)

	for _, src := range f.sources {
		err := fs.WalkDir(src.Local.FS, ".", func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if p == "." {
				return nil
			}
			if d.IsDir() {
				if f.ignore.MatchesPath(p + "/") {
					return fs.SkipDir
				}
				return nil
			}
			if f.ignore.MatchesPath(p) || !f.included(p) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				slog.Warn("collect find", "path", p, "error", err)
				return nil
			}

			prefixed := p
			if src.Prefix != "" {
				prefixed = path.Join(utils.ToSlashKey(src.Prefix), p)
			}
			if first, dup := seen[prefixed]; dup {
				slog.Debug("collect find", "op", "DUPLICATE", "path", prefixed, "source", src.Local.Name, "kept", first)
				return nil
			}
			seen[prefixed] = src.Local.Name

			tasks = append(tasks, Task{
				Path:         p,
				PrefixedPath: prefixed,
				Source:       src.Local,
				Size:         info.Size(),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk source %s: %w", src.Local.Name, err)
		}
	}
	return tasks, nil
}

func (f *Finder) included(p string) bool {
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// Package collect copies local source trees to a storage backend, asking the
// configured strategy which files actually changed.
package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/syftsync/internal/connscope"
	"github.com/openmined/syftsync/internal/hashcache"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/queue"
	"github.com/openmined/syftsync/internal/storage"
	"github.com/openmined/syftsync/internal/strategy"
	"github.com/openmined/syftsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// StrategyLoader builds the strategy for one run.
type StrategyLoader func() (strategy.Strategy, error)

type Options struct {
	Backend        storage.Backend
	Finder         TaskFinder
	LoadStrategy   StrategyLoader
	PostProcessors []PostProcessor
	Compression    hasher.Compression
	// Cache entries are dropped for every object the run overwrites or
	// deletes, whatever strategy is active.
	Cache     hashcache.Cache
	KeyPrefix string
	// Threads > 0 dispatches files to that many workers.
	Threads int
	// Enabled=false copies every file without consulting a strategy.
	Enabled bool
	// Debug aborts on the first strategy error instead of copying.
	Debug bool
	// Keep lists doublestar patterns of remote names never pruned.
	Keep []string
}

type RunOptions struct {
	DryRun  bool
	Disable bool
	// Clear deletes remote objects no source provides anymore.
	Clear bool
}

type Result struct {
	Copied        int
	Skipped       int
	Deleted       int
	Failed        int
	PostProcessed int
	Duration      time.Duration
}

func (r *Result) Summary() string {
	return fmt.Sprintf("%d file(s) copied, %d skipped, %d deleted.", r.Copied, r.Skipped, r.Deleted)
}

type Collector struct {
	opts Options
}

func New(opts Options) *Collector {
	if opts.Cache == nil {
		opts.Cache = hashcache.NoneCache{}
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = hashcache.DefaultKeyPrefix
	}
	return &Collector{opts: opts}
}

// run is the state of one Run call.
type run struct {
	*Collector
	dryRun bool
	// consult is false when files are copied unconditionally; strategy then
	// stays Disabled and must not be reached.
	consult  bool
	strategy strategy.Strategy
	copied   mapset.Set[string]

	nCopied  atomic.Int64
	nSkipped atomic.Int64
	nFailed  atomic.Int64
}

func (c *Collector) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	start := time.Now()
	tasks, err := c.opts.Finder.Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("find files: %w", err)
	}
	slog.Info("collect start", "files", len(tasks), "threads", c.opts.Threads, "dryRun", opts.DryRun, "clear", opts.Clear)

	r := &run{
		Collector: c,
		dryRun:    opts.DryRun,
		strategy:  strategy.Disabled{},
		copied:    mapset.NewSet[string](),
	}

	if c.opts.Enabled && !opts.Disable && !opts.DryRun {
		if r.strategy, err = c.opts.LoadStrategy(); err != nil {
			return nil, fmt.Errorf("load strategy: %w", err)
		}
		r.consult = true
		if err := r.strategy.PreCollectHook(ctx); err != nil {
			if c.opts.Debug {
				return nil, fmt.Errorf("pre collect: %w", err)
			}
			slog.Warn("collect pre collect hook", "error", err)
		}
	}

	if c.opts.Threads > 0 {
		err = r.dispatchParallel(ctx, tasks)
	} else {
		err = r.dispatch(ctx, tasks)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Copied:  int(r.nCopied.Load()),
		Skipped: int(r.nSkipped.Load()),
		Failed:  int(r.nFailed.Load()),
	}

	if opts.Clear {
		if res.Deleted, err = r.prune(ctx, tasks); err != nil {
			return nil, err
		}
	}

	files := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		files[t.PrefixedPath] = t
	}
	for _, p := range c.opts.PostProcessors {
		n, err := p.PostProcess(ctx, files, opts.DryRun)
		if err != nil {
			return nil, fmt.Errorf("post process: %w", err)
		}
		res.PostProcessed += n
	}

	res.Duration = time.Since(start)
	slog.Info("collect done", "copied", res.Copied, "skipped", res.Skipped, "deleted", res.Deleted, "failed", res.Failed, "duration", res.Duration)
	return res, nil
}

func (r *run) dispatch(ctx context.Context, tasks []Task) error {
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.process(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// dispatchParallel hands the largest files out first so a slow upload does
// not start last.
func (r *run) dispatchParallel(ctx context.Context, tasks []Task) error {
	pq := queue.NewPriorityQueue[Task]()
	for _, t := range tasks {
		pq.Enqueue(t, -t.Size)
	}
	ordered := pq.Drain()

	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan Task)

	for w := 0; w < r.opts.Threads; w++ {
		wctx := connscope.WithWorker(gctx, w)
		g.Go(func() error {
			for t := range ch {
				if err := wctx.Err(); err != nil {
					return err
				}
				if err := r.process(wctx, t); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(ch)
		for _, t := range ordered {
			select {
			case ch <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	return g.Wait()
}

func (r *run) process(ctx context.Context, t Task) error {
	if !r.consult {
		_, err := r.copyFile(ctx, t)
		return err
	}

	copyIt, err := r.decide(ctx, t)
	if err != nil {
		if r.opts.Debug && !errors.Is(err, hasher.ErrLocalIO) {
			return fmt.Errorf("should copy %s: %w", t.PrefixedPath, err)
		}
		slog.Warn("collect", "op", "DECIDE", "path", t.PrefixedPath, "error", err)
		copyIt = true
	}

	if !copyIt {
		r.strategy.OnSkipHook(ctx, t.Path, t.PrefixedPath, t.Source)
		r.nSkipped.Add(1)
		slog.Debug("collect", "op", "SKIPPED", "reason", "unchanged", "path", t.PrefixedPath)
		return nil
	}

	wrote, err := r.copyFile(ctx, t)
	if err != nil {
		return err
	}
	if wrote {
		r.strategy.PostCopyHook(ctx, t.Path, t.PrefixedPath, t.Source)
	}
	return nil
}

// decide turns a strategy panic into an error so one bad file cannot take the
// run down.
func (r *run) decide(ctx context.Context, t Task) (copyIt bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Debug("collect strategy panic", "path", t.PrefixedPath, "stack", string(debug.Stack()))
			copyIt, err = true, fmt.Errorf("strategy panic: %v", p)
		}
	}()
	r.strategy.PreShouldCopyHook(ctx)
	return r.strategy.ShouldCopyFile(ctx, t.Path, t.PrefixedPath, t.Source)
}

// copyFile reports wrote=false when nothing was written: a dry run, a storage
// name already written during this run, or an unreadable local file.
func (r *run) copyFile(ctx context.Context, t Task) (bool, error) {
	if !r.copied.Add(t.PrefixedPath) {
		slog.Debug("collect", "op", "SKIPPED", "reason", "already copied", "path", t.PrefixedPath)
		return false, nil
	}

	if r.dryRun {
		slog.Info("Pretending to copy", "path", t.PrefixedPath, "source", t.Source.Name)
		r.nCopied.Add(1)
		return false, nil
	}

	data, err := fs.ReadFile(t.Source.FS, t.Path)
	if err != nil {
		r.nFailed.Add(1)
		slog.Error("collect", "op", "COPY", "path", t.PrefixedPath, "error", fmt.Errorf("%w: %w", hasher.ErrLocalIO, err))
		return false, nil
	}

	obj := &storage.Object{
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: utils.DetectContentType(t.Path, sniffHead(data)),
	}
	if r.opts.Backend.GzipEnabled() && r.opts.Compression.Applies(t.Path, data) {
		gz, err := hasher.Gzip(data, r.opts.Compression.Level)
		if err != nil {
			return false, fmt.Errorf("gzip %s: %w", t.PrefixedPath, err)
		}
		obj.Body = bytes.NewReader(gz)
		obj.Size = int64(len(gz))
		obj.ContentEncoding = "gzip"
	}

	r.invalidate(ctx, t.PrefixedPath)
	if err := r.opts.Backend.Save(ctx, t.PrefixedPath, obj); err != nil {
		return false, fmt.Errorf("copy %s: %w", t.PrefixedPath, err)
	}

	r.nCopied.Add(1)
	slog.Info("collect", "op", "COPY", "path", t.PrefixedPath, "size", humanize.Bytes(uint64(obj.Size)), "encoding", obj.ContentEncoding)
	return true, nil
}

func (r *run) invalidate(ctx context.Context, name string) {
	if err := r.opts.Cache.Delete(ctx, hashcache.Key(r.opts.KeyPrefix, name)); err != nil {
		slog.Warn("collect cache delete", "path", name, "error", err)
	}
}

func (r *run) isDeleteNotFound(err error) bool {
	if r.consult {
		return r.strategy.IsDeleteNotFound(err)
	}
	return errors.Is(err, storage.ErrNotFound)
}

// prune deletes remote objects no task provides. The strategy is not asked.
func (r *run) prune(ctx context.Context, tasks []Task) (int, error) {
	local := mapset.NewThreadUnsafeSet[string]()
	for _, t := range tasks {
		local.Add(t.PrefixedPath)
	}

	remote, err := r.opts.Backend.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list remote: %w", err)
	}
	sort.Strings(remote)

	deleted := 0
	for _, name := range remote {
		if local.Contains(name) || r.kept(name) {
			continue
		}
		if r.dryRun {
			slog.Info("Pretending to delete", "path", name)
			deleted++
			continue
		}
		if err := r.opts.Backend.Delete(ctx, name); err != nil {
			if r.isDeleteNotFound(err) {
				slog.Debug("collect", "op", "DELETE", "path", name, "reason", "already gone")
				r.invalidate(ctx, name)
				continue
			}
			return deleted, fmt.Errorf("delete %s: %w", name, err)
		}
		r.invalidate(ctx, name)
		deleted++
		slog.Info("collect", "op", "DELETE", "path", name)
	}
	return deleted, nil
}

func (r *run) kept(name string) bool {
	for _, pattern := range r.opts.Keep {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func sniffHead(data []byte) []byte {
	const n = 3072
	if len(data) > n {
		return data[:n]
	}
	return data
}

// Package watcher watches import directories and hands changed place sheets to
// a handler in batches, so a burst of file writes results in one import run.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultQuietPeriod = 400 * time.Millisecond

// Handler receives the sheets changed since the previous call, sorted by path.
type Handler func(ctx context.Context, paths []string)

// Watcher watches root directories for created or modified sheets.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	handle     Handler
	quiet      time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	ctx     context.Context
	pending map[string]struct{}
	timer   *time.Timer
	// runMu keeps handler calls from overlapping.
	runMu    sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithQuietPeriod sets how long the directories must stay unchanged before a batch is handled.
func WithQuietPeriod(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.quiet = d
		}
	}
}

// New creates a watcher over roots. Only files whose extension is in extensions are
// reported; an empty list reports every file.
func New(roots, extensions []string, recursive bool, handle Handler, opts ...Option) *Watcher {
	w := &Watcher{
		roots:      append([]string(nil), roots...),
		extensions: extensions,
		recursive:  recursive,
		handle:     handle,
		quiet:      defaultQuietPeriod,
		logger:     zap.NewNop(),
		ctx:        context.Background(),
		pending:    make(map[string]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for _, root := range w.roots {
		if err := w.watchRoot(fsw, root); err != nil {
			_ = fsw.Close()
			w.mu.Unlock()
			return err
		}
	}
	w.fsw = fsw
	w.ctx = ctx
	w.mu.Unlock()

	w.logger.Info("watching import directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) watchRoot(fsw *fsnotify.Watcher, root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !w.underRoot(ev.Name) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(fsw, ev.Name)
			return
		}
		if matchExtension(ev.Name, w.extensions) {
			w.schedule(ev.Name)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
		if matchExtension(ev.Name, w.extensions) {
			// Imported places stay in storage when their sheet goes away.
			w.logger.Info("sheet removed, places kept", zap.String("path", ev.Name))
		}
	}
}

// handleNewDirectory starts watching a directory created under a root and queues the sheets already in it.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) {
	if !w.recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
		return nil
	})
}

// schedule adds path to the pending batch and restarts the quiet period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.quiet, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	ctx := w.ctx
	w.mu.Unlock()

	sort.Strings(paths)
	w.dispatch(ctx, paths)
}

func (w *Watcher) dispatch(ctx context.Context, paths []string) {
	if w.handle == nil || len(paths) == 0 || ctx.Err() != nil {
		return
	}
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.logger.Info("importing changed sheets", zap.Strings("paths", paths))
	w.handle(ctx, paths)
}

// Sync hands every existing matching sheet under the roots to the handler in one batch.
func (w *Watcher) Sync(ctx context.Context) {
	var paths []string
	for _, root := range w.Directories() {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && !w.recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if matchExtension(path, w.extensions) {
				paths = append(paths, path)
			}
			return nil
		})
	}
	sort.Strings(paths)
	w.dispatch(ctx, paths)
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.Directories() {
		if inDir(filepath.Clean(root), clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Stop stops watching and drops any pending batch.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = make(map[string]struct{})
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.stopOnce.Do(func() { close(w.done) })
}

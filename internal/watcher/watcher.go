// Package watcher imports books dropped into a folder.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yuanying/epubrsvp/internal/library"
)

// Importer imports files into the library.
type Importer interface {
	ImportFiles(ctx context.Context, files []library.File) (*library.ImportReport, error)
}

// Watcher watches one folder and imports new or rewritten book files once
// they stop changing.
type Watcher struct {
	dir      string
	opts     Options
	importer Importer
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*pendingFile
	ready   chan string
}

// pendingFile tracks a file that may still be written to.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a watcher on dir.
func New(dir string, importer Importer, logger *slog.Logger, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.setDefaults()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch folder %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      filepath.Clean(dir),
		opts:     opts,
		importer: importer,
		logger:   logger.With("folder", dir),
		fsw:      fsw,
		pending:  make(map[string]*pendingFile),
		ready:    make(chan string, 64),
	}, nil
}

// Run imports settled files until ctx is done. Imports run one at a time
// on the calling goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	if w.opts.ImportExisting {
		if err := w.importExisting(ctx); err != nil {
			return err
		}
	}
	w.logger.Info("watching import folder")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case path := <-w.ready:
			w.importFile(ctx, path)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !w.opts.shouldImport(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.settle(event.Name)
	}
}

// settle (re)starts the settle timer of path.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		delete(w.pending, path)
		return
	}
	p := &pendingFile{size: info.Size(), modTime: info.ModTime()}
	p.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path, p) })
	w.pending[path] = p
}

// checkSettled hands path to Run once its size and mtime held still for a
// whole settle delay.
func (w *Watcher) checkSettled(path string, p *pendingFile) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending[path] != p {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}
	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size, p.modTime = info.Size(), info.ModTime()
		p.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path, p) })
		return
	}
	delete(w.pending, path)

	select {
	case w.ready <- path:
	default:
		w.logger.Warn("import queue full, dropping file", "file", path)
	}
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) importExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list import folder: %w", err)
	}
	var paths []string
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && w.opts.shouldImport(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil
		}
		w.importFile(ctx, path)
	}
	return nil
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read file", "file", path, "error", err)
		return
	}
	report, err := w.importer.ImportFiles(ctx, []library.File{{Name: filepath.Base(path), Data: data}})
	if err != nil {
		w.logger.Warn("import aborted", "file", path, "error", err)
		return
	}
	for _, e := range report.Imported {
		w.logger.Info("imported from folder", "file", path, "book_id", e.ID, "title", e.Title)
	}
	for _, f := range report.Failed {
		w.logger.Warn(f.Message(), "kind", f.Kind)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if err := w.fsw.Close(); err != nil {
		w.logger.Debug("failed to close fsnotify watcher", "error", err)
	}
}

// Package watch turns filesystem activity in the local drop folder into
// storage notifications, standing in for the event bus a hosted object
// store provides. It is only used with local storage.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docpipe/docpipe/internal/event"
)

// DefaultDebounceWindow is how long a path must be quiet before its
// notification is emitted.
const DefaultDebounceWindow = 200 * time.Millisecond

// Notifier receives the synthesized notifications.
type Notifier interface {
	Emit(ctx context.Context, n event.Notification) error
}

// Options configures the drop watcher.
type Options struct {
	// Root is the directory backing the watched bucket.
	Root string

	// Bucket names the bucket notifications are attributed to.
	Bucket string

	// DebounceWindow is the quiet period before emitting. Default 200ms.
	DebounceWindow time.Duration
}

// DropWatcher watches a local bucket directory and emits one
// notification per settled file. New subdirectories are watched as they
// appear; fsnotify does not recurse on its own.
type DropWatcher struct {
	opts     Options
	notify   Notifier
	debounce *Debouncer
	logger   *slog.Logger
}

// New creates a DropWatcher.
func New(opts Options, notify Notifier, logger *slog.Logger) *DropWatcher {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DropWatcher{
		opts:     opts,
		notify:   notify,
		debounce: NewDebouncer(opts.DebounceWindow),
		logger:   logger,
	}
}

// Run watches until ctx is canceled. Files already present at startup
// are emitted once, so documents dropped while the service was down are
// not lost.
func (w *DropWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	defer w.debounce.Stop()

	if err := os.MkdirAll(w.opts.Root, 0755); err != nil {
		return fmt.Errorf("create drop folder %s: %w", w.opts.Root, err)
	}
	if err := w.addRecursive(watcher, w.opts.Root); err != nil {
		return err
	}

	if err := w.emitExisting(ctx); err != nil {
		return err
	}

	w.logger.Info("drop_watcher_started",
		slog.String("root", w.opts.Root),
		slog.String("bucket", w.opts.Bucket))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case fsEvent, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(watcher, fsEvent)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", slog.String("error", werr.Error()))

		case paths, ok := <-w.debounce.Output():
			if !ok {
				return nil
			}
			for _, path := range paths {
				if err := w.emitPath(ctx, path); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					w.logger.Warn("emit_failed",
						slog.String("path", path),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

func (w *DropWatcher) handleFSEvent(watcher *fsnotify.Watcher, fsEvent fsnotify.Event) {
	if fsEvent.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(fsEvent.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if fsEvent.Op&fsnotify.Create != 0 {
			if err := w.addRecursive(watcher, fsEvent.Name); err != nil {
				w.logger.Warn("watch_subdir_failed",
					slog.String("path", fsEvent.Name),
					slog.String("error", err.Error()))
			}
		}
		return
	}

	w.debounce.Add(fsEvent.Name)
}

// addRecursive watches dir and every directory under it.
func (w *DropWatcher) addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if werr := watcher.Add(path); werr != nil {
				return fmt.Errorf("watch %s: %w", path, werr)
			}
		}
		return nil
	})
}

// emitExisting notifies for files already in the drop folder.
func (w *DropWatcher) emitExisting(ctx context.Context) error {
	return filepath.WalkDir(w.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return w.emitPath(ctx, path)
	})
}

// emitPath synthesizes the notification for one file. The version is the
// modification time, so rewriting a file yields a distinct ledger key
// and the document is reprocessed.
func (w *DropWatcher) emitPath(ctx context.Context, path string) error {
	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", path, err)
	}
	key := filepath.ToSlash(rel)
	if strings.HasPrefix(key, ".") {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		// Deleted between debounce and emit.
		return nil
	}

	return w.notify.Emit(ctx, event.Notification{
		Bucket:    w.opts.Bucket,
		Key:       key,
		EventTime: time.Now().UTC(),
		Version:   strconv.FormatInt(info.ModTime().UnixNano(), 10),
	})
}

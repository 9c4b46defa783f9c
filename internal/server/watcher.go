package server

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/trellis-dev/trellis/internal/cache"
	"github.com/trellis-dev/trellis/internal/paths"
)

// Watcher invalidates the children cache when planning files change
// outside the server's own writes, e.g. an agent editing Markdown
// directly. Events are debounced so a burst of writes costs one flush.
type Watcher struct {
	roots    paths.Roots
	children *cache.Children
	log      *zap.Logger
	debounce time.Duration
}

// NewWatcher creates a Watcher over the planning tree.
func NewWatcher(roots paths.Roots, children *cache.Children, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		roots:    roots,
		children: children,
		log:      log,
		debounce: 500 * time.Millisecond,
	}
}

// Run watches until the context is cancelled. Watch setup failures are
// logged and swallowed; the cache falls back to mtime freshness checks.
func (w *Watcher) Run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("file watcher unavailable", zap.Error(err))
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := w.addTree(watcher); err != nil {
		w.log.Warn("planning tree could not be watched", zap.Error(err))
		return
	}

	var debounceTimer *time.Timer
	flush := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			// New directories join the watch set as they appear.
			if event.Has(fsnotify.Create) {
				_ = watcher.Add(event.Name)
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				select {
				case flush <- struct{}{}:
				default:
				}
			})
		case <-flush:
			w.children.InvalidateAll()
			w.log.Debug("children cache flushed after external change")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) addTree(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.roots.Resolution, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	// Temp files from atomic writes settle via rename; ignore them.
	return !strings.HasPrefix(base, ".trellis-")
}

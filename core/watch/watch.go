// Package watch reruns an action whenever one of a set of files changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/davidahmann/gwdeck/internal/ctxlog"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher observes files through their parent directories so that files
// replaced by rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
}

// New starts watching paths. Events are buffered from this point on, before
// Run is called.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("watch: no paths given")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{watcher: watcher, files: map[string]bool{}, debounce: debounce}
	dirs := map[string]bool{}
	for _, path := range paths {
		absolute, err := filepath.Abs(path)
		if err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", path, err)
		}
		w.files[absolute] = true
		dirs[filepath.Dir(absolute)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run calls onChange after every debounced change until ctx is done. Errors
// from onChange are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		_ = w.watcher.Close()
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("model file changed", "path", event.Name, "op", event.Op.String())
			// Reset discards a pending expiry, so a burst fires once.
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		case <-timer.C:
			if err := onChange(ctx); err != nil {
				logger.Error("rebuild failed", "error", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	absolute, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[absolute]
}

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeEvent describes a change to a watched path.
type ChangeEvent struct {
	Path      string    `json:"path"`
	Action    string    `json:"action"` // create, modify, delete, rename, poll
	Timestamp time.Time `json:"timestamp"`
}

// ChangeHandler reloads whatever depends on a watched path.
type ChangeHandler func(event ChangeEvent) error

type watchTarget struct {
	dir      bool
	ext      string // directory targets only react to files with this extension
	handlers []ChangeHandler
	modTime  time.Time
}

// Watcher hot-reloads files that can change while the process runs: the system
// prompt and the tool policies.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu      sync.Mutex
	targets map[string]*watchTarget
	timers  map[string]*time.Timer
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Rapid successive writes inside this window trigger one reload
	debounce time.Duration

	// Polling fallback for filesystems where fsnotify is unreliable
	pollInterval time.Duration
}

// NewWatcher creates an idle watcher. Register paths with Watch, then Start.
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		watcher:  fw,
		logger:   logger,
		targets:  make(map[string]*watchTarget),
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		debounce: 100 * time.Millisecond,
	}, nil
}

// SetDebounce changes the debounce window. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// EnablePolling re-checks modification times every interval in addition to fsnotify.
func (w *Watcher) EnablePolling(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = interval
	w.logger.Info("Configuration polling enabled", zap.Duration("interval", interval))
}

// Watch registers handler for path. A file path is watched through its parent
// directory so editors that replace the file are still seen. A directory path
// reacts to files ending in ext (every file when ext is empty).
func (w *Watcher) Watch(path, ext string, handler ChangeHandler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	info, statErr := os.Stat(abs)
	isDir := statErr == nil && info.IsDir()
	watchDir := abs
	if !isDir {
		watchDir = filepath.Dir(abs)
	}
	if err := w.watcher.Add(watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchDir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.targets[abs]
	if !ok {
		t = &watchTarget{dir: isDir, ext: ext}
		if statErr == nil {
			t.modTime = info.ModTime()
		}
		w.targets[abs] = t
	}
	t.handlers = append(t.handlers, handler)

	w.logger.Info("Watching for changes",
		zap.String("path", abs),
		zap.Bool("directory", isDir),
		zap.Int("handlers", len(t.handlers)),
	)
	return nil
}

// Start runs the event loop until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	poll := w.pollInterval
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(ctx)
	if poll > 0 {
		w.wg.Add(1)
		go w.pollLoop(ctx, poll)
	}
}

// Stop ends the event loop and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return nil
	default:
	}
	close(w.stopCh)
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleWatchEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context, interval time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

// checkForChanges compares modification times of file targets.
func (w *Watcher) checkForChanges() {
	w.mu.Lock()
	var changed []string
	for path, t := range w.targets {
		if t.dir {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(t.modTime) {
			t.modTime = info.ModTime()
			changed = append(changed, path)
		}
	}
	w.mu.Unlock()

	for _, path := range changed {
		w.schedule(path, "poll")
	}
}

func (w *Watcher) handleWatchEvent(event fsnotify.Event) {
	var action string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		action = "create"
	case event.Op&fsnotify.Write == fsnotify.Write:
		action = "modify"
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		action = "delete"
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		action = "rename"
	default:
		// chmod
		return
	}

	name := filepath.Clean(event.Name)
	for _, key := range w.match(name) {
		w.logger.Debug("File system event",
			zap.String("file", name),
			zap.String("op", event.Op.String()),
		)
		w.schedule(key, action)
	}
}

// match returns the targets interested in a changed file.
func (w *Watcher) match(name string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var keys []string
	for key, t := range w.targets {
		switch {
		case !t.dir && key == name:
			keys = append(keys, key)
		case t.dir && strings.HasPrefix(name, key+string(filepath.Separator)):
			if t.ext == "" || filepath.Ext(name) == t.ext {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// schedule debounces reloads per target.
func (w *Watcher) schedule(key, action string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
		return
	default:
	}

	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.fire(key, action)
	})
}

func (w *Watcher) fire(key, action string) {
	w.mu.Lock()
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return
	default:
	}
	delete(w.timers, key)
	t, ok := w.targets[key]
	var handlers []ChangeHandler
	if ok {
		handlers = append(handlers, t.handlers...)
		if info, err := os.Stat(key); err == nil {
			t.modTime = info.ModTime()
		}
	}
	w.mu.Unlock()

	event := ChangeEvent{Path: key, Action: action, Timestamp: time.Now()}
	for _, h := range handlers {
		if err := h(event); err != nil {
			w.logger.Error("Reload handler failed",
				zap.String("path", key),
				zap.String("action", action),
				zap.Error(err),
			)
			continue
		}
		w.logger.Info("Reloaded after change",
			zap.String("path", key),
			zap.String("action", action),
		)
	}
}

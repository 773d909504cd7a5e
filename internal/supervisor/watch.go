package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed is returned when the filesystem watcher cannot start.
var ErrWatcherFailed = errors.New("supervisor config watcher failed")

// Watcher invalidates a Supervisor's cached configs when their files
// change on disk.
type Watcher struct {
	sup     *Supervisor
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// Watch starts a Watcher for s. It is a no-op when one is already running.
func (s *Supervisor) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := newWatcher(s)
	if err != nil {
		return err
	}
	w.start(ctx)
	s.watcher = w
	return nil
}

func newWatcher(s *Supervisor) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	if err := fw.Add(s.loader.GlobalPath()); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, s.loader.GlobalPath(), err)
	}
	// The projects directory is optional.
	if info, err := os.Stat(s.loader.ProjectsPath()); err == nil && info.IsDir() {
		_ = fw.Add(s.loader.ProjectsPath())
	}

	return &Watcher{
		sup:     s,
		watcher: fw,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

func (w *Watcher) start(ctx context.Context) {
	go w.processEvents(ctx)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sup.logger.Warn("supervisor config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	dir, base := filepath.Split(event.Name)
	dir = filepath.Clean(dir)
	ext := filepath.Ext(base)
	if !isConfigExt(ext) {
		// A projects directory created after start is picked up here.
		if event.Op&fsnotify.Create != 0 && filepath.Clean(event.Name) == filepath.Clean(w.sup.loader.ProjectsPath()) {
			_ = w.watcher.Add(event.Name)
		}
		return
	}
	name := strings.TrimSuffix(base, ext)

	switch {
	case dir == filepath.Clean(w.sup.loader.GlobalPath()) && name == globalConfigName:
		w.sup.InvalidateAll()
	case dir == filepath.Clean(w.sup.loader.ProjectsPath()):
		w.sup.Invalidate(name)
	}
}

func isConfigExt(ext string) bool {
	for _, e := range configExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

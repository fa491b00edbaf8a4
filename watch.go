package paranormal

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// BaseImageWatcher calls a function whenever a watched image file is
// written, created, removed, or renamed.
//
// It watches the file's directory rather than the file, so editors that
// save by replacing the file are still seen.
type BaseImageWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	onEvent func(fsnotify.Event)
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// WatchBaseImage starts watching path. onChange runs on the watcher's
// goroutine. Call Close to stop watching.
func WatchBaseImage(path string, onChange func()) (*BaseImageWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("paranormal: watch %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("paranormal: create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("paranormal: watch %s: %w", path, err)
	}

	w := &BaseImageWatcher{
		watcher: watcher,
		path:    abs,
		onEvent: func(fsnotify.Event) { onChange() },
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *BaseImageWatcher) Path() string { return w.path }

func (w *BaseImageWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				Logger().Debug("base image changed", "path", w.path, "op", event.Op.String())
				w.onEvent(event)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			Logger().Warn("base image watcher error", "path", w.path, "err", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *BaseImageWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

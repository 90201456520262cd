package pipeline

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"teapot/internal/logging"
)

// Watcher reports shader source changes in a directory. Bursts of events
// within the debounce window collapse into one notification.
type Watcher struct {
	watcher  *fsnotify.Watcher
	changed  chan string
	done     chan struct{}
	debounce time.Duration
}

// Watch starts watching dir for *.spv and *.wgsl changes.
func Watch(dir string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create shader watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}
	w := &Watcher{
		watcher:  fw,
		changed:  make(chan string, 1),
		done:     make(chan struct{}),
		debounce: debounce,
	}
	go w.run()
	return w, nil
}

// Changed delivers the last changed file name after each burst.
func (w *Watcher) Changed() <-chan string { return w.changed }

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func isShaderFile(name string) bool {
	switch filepath.Ext(name) {
	case ".spv", ".wgsl":
		return true
	}
	return false
}

func (w *Watcher) run() {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var last string
	for {
		select {
		case <-w.done:
			timer.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isShaderFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			last = event.Name
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger().Warn("shader watcher", "err", err)
		case <-timer.C:
			select {
			case w.changed <- last:
			default:
			}
		}
	}
}

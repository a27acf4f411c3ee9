package photostore

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher observes a photo directory tree and fires a callback once per
// burst of changes. Its only job is telling the owner that cached detection
// results went stale; rescanning is up to the owner.
type Watcher struct {
	root     string
	onChange func()
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.Mutex
	timer *time.Timer

	closeOnce sync.Once
}

// NewWatcher creates a watcher for the directory tree rooted at dir.
// Call Start to begin receiving events.
func NewWatcher(dir string, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		root:     dir,
		onChange: onChange,
		debounce: defaultDebounce,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins watching.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	go w.eventLoop()
	return nil
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return err
}

// addRecursive watches dir and every non-hidden subdirectory.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("watcher: failed to watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	if event.Op&relevant == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				log.Printf("watcher: failed to watch new directory %s: %v", event.Name, err)
			}
			w.schedule()
			return
		}
	}

	if !imageExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	w.schedule()
}

// schedule arms the debounce timer, collapsing event bursts (a copied
// directory of photos, an export in progress) into one callback.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

package photostore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherFiresOnNewPhoto(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(dir, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.debounce = 50 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Close()

	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired for a new photo")
	}
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(dir, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.debounce = 50 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	select {
	case <-changed:
		t.Fatal("watcher fired for a non-image file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func() {})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

package photostore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

func writePNG(t *testing.T, path string, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{uint8(x * 20), uint8(y * 20), 120, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return buf.Bytes()
}

func setModTime(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
}

func TestFilesystemStoreList(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	a := filepath.Join(dir, "holiday", "a.png")
	b := filepath.Join(dir, "holiday", "b.png")
	c := filepath.Join(dir, "city", "c.png")
	writePNG(t, a, 10, 8)
	writePNG(t, b, 10, 8)
	writePNG(t, c, 20, 10)
	setModTime(t, a, base)
	setModTime(t, b, base.Add(time.Second))
	setModTime(t, c, base.Add(2*time.Second))

	// Non-image files and hidden directories are invisible.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write notes.txt: %v", err)
	}
	writePNG(t, filepath.Join(dir, ".thumbnails", "d.png"), 4, 4)

	store, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	photos, err := store.ListPhotos(context.Background())
	if err != nil {
		t.Fatalf("ListPhotos failed: %v", err)
	}
	if len(photos) != 3 {
		t.Fatalf("listed %d photos, want 3", len(photos))
	}

	wantBuckets := []string{"holiday", "holiday", "city"}
	wantWidths := []int{10, 10, 20}
	for i, p := range photos {
		if p.BucketName != wantBuckets[i] {
			t.Errorf("photo %d bucket = %q; want %q", i, p.BucketName, wantBuckets[i])
		}
		if p.Width != wantWidths[i] || p.Height == 0 {
			t.Errorf("photo %d dimensions = %dx%d; want width %d", i, p.Width, p.Height, wantWidths[i])
		}
		if p.SizeBytes <= 0 {
			t.Errorf("photo %d has no size", i)
		}
		if p.ID < 0 {
			t.Errorf("photo %d id = %d; want non-negative", i, p.ID)
		}
	}

	if photos[0].TimestampMs != base.UnixMilli() {
		t.Errorf("first timestamp = %d; want mtime %d", photos[0].TimestampMs, base.UnixMilli())
	}
	for i := 1; i < len(photos); i++ {
		if photos[i].TimestampMs < photos[i-1].TimestampMs {
			t.Errorf("photos not sorted by timestamp at %d", i)
		}
	}
}

func TestFilesystemStoreStableIDs(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "holiday", "a.png"), 6, 6)

	store, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	first, err := store.ListPhotos(context.Background())
	if err != nil {
		t.Fatalf("ListPhotos failed: %v", err)
	}
	second, err := store.ListPhotos(context.Background())
	if err != nil {
		t.Fatalf("ListPhotos failed: %v", err)
	}
	if first[0].ID != second[0].ID {
		t.Errorf("id changed between walks: %d vs %d", first[0].ID, second[0].ID)
	}

	// Same relative path in a different store rooted elsewhere gives the
	// same id, so caches survive moving the library.
	other := t.TempDir()
	writePNG(t, filepath.Join(other, "holiday", "a.png"), 6, 6)
	otherStore, err := NewFilesystemStore(other)
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	moved, err := otherStore.ListPhotos(context.Background())
	if err != nil {
		t.Fatalf("ListPhotos failed: %v", err)
	}
	if moved[0].ID != first[0].ID {
		t.Errorf("relative path id differs across roots: %d vs %d", moved[0].ID, first[0].ID)
	}
}

func TestFilesystemStorePixels(t *testing.T) {
	dir := t.TempDir()
	want := writePNG(t, filepath.Join(dir, "holiday", "a.png"), 6, 6)

	store, err := NewFilesystemStore(dir)
	if err != nil {
		t.Fatalf("NewFilesystemStore failed: %v", err)
	}
	photos, err := store.ListPhotos(context.Background())
	if err != nil {
		t.Fatalf("ListPhotos failed: %v", err)
	}

	data, orientation, err := store.Pixels(context.Background(), photos[0])
	if err != nil {
		t.Fatalf("Pixels failed: %v", err)
	}
	if !bytes.Equal(data, want) {
		t.Error("Pixels returned different bytes than written")
	}
	if orientation != 0 {
		t.Errorf("orientation = %d; want 0 for plain png", orientation)
	}

	if _, _, err := store.Pixels(context.Background(), photo.Photo{ID: 424242}); err == nil {
		t.Error("Pixels succeeded for an unlisted photo")
	}
}

func TestNewFilesystemStoreErrors(t *testing.T) {
	if _, err := NewFilesystemStore(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewFilesystemStore accepted a missing directory")
	}

	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := NewFilesystemStore(file); err == nil {
		t.Error("NewFilesystemStore accepted a plain file")
	}
}

func TestPathID(t *testing.T) {
	a := pathID("holiday/a.png")
	if a != pathID("holiday/a.png") {
		t.Error("pathID not deterministic")
	}
	if a == pathID("holiday/b.png") {
		t.Error("different paths share an id")
	}
	if a < 0 {
		t.Errorf("pathID = %d; want non-negative", a)
	}
}

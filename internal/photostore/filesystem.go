package photostore

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	_ "golang.org/x/image/bmp"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

func init() {
	// Maker-note parsers so camera-specific EXIF blocks decode too.
	exif.RegisterParsers(mknote.All...)
}

// imageExtensions are the file types the fingerprinter can decode.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

type fileRef struct {
	path        string
	orientation int
}

// FilesystemStore walks a photo directory tree. Photo ids are derived from
// the path relative to the root, so they stay stable across runs as long as
// files do not move. It doubles as the pixel source for fingerprinting.
type FilesystemStore struct {
	root string

	mu    sync.RWMutex
	files map[int64]fileRef
}

// NewFilesystemStore creates a store rooted at dir.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve photo directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("photo path %s is not a directory", abs)
	}
	return &FilesystemStore{root: abs, files: make(map[int64]fileRef)}, nil
}

// Root returns the absolute directory the store walks.
func (s *FilesystemStore) Root() string {
	return s.root
}

// ListPhotos walks the tree and returns a record per supported image file.
// Hidden directories are skipped. The walk refreshes the id-to-path index
// used by Pixels.
func (s *FilesystemStore) ListPhotos(ctx context.Context) ([]photo.Photo, error) {
	var photos []photo.Photo
	files := make(map[int64]fileRef)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees do not fail the whole listing.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}

		p := s.buildPhoto(path, rel, info)
		photos = append(photos, p)
		files[p.ID] = fileRef{path: path, orientation: p.Orientation}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk photo directory: %w", err)
	}

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()

	photo.SortByTimestamp(photos)
	return photos, nil
}

func (s *FilesystemStore) buildPhoto(path, rel string, info fs.FileInfo) photo.Photo {
	taken, width, height, orientation := readImageMetadata(path)
	if taken.IsZero() {
		taken = info.ModTime()
	}
	return photo.Photo{
		ID:          pathID(rel),
		TimestampMs: taken.UnixMilli(),
		SizeBytes:   info.Size(),
		Width:       width,
		Height:      height,
		Orientation: orientation,
		BucketName:  filepath.Base(filepath.Dir(path)),
	}
}

// Pixels returns the encoded bytes for a photo listed by this store.
func (s *FilesystemStore) Pixels(ctx context.Context, p photo.Photo) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	ref, ok := s.files[p.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("unknown photo id %d", p.ID)
	}
	data, err := os.ReadFile(ref.path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", ref.path, err)
	}
	return data, ref.orientation, nil
}

// pathID hashes a slash-normalized relative path into a non-negative id.
func pathID(rel string) int64 {
	h := fnv.New64a()
	h.Write([]byte(filepath.ToSlash(rel)))
	return int64(h.Sum64() &^ (1 << 63))
}

// readImageMetadata pulls the capture time, raw dimensions and orientation
// out of the file. EXIF is tried first; dimensions fall back to the image
// header. Files without either simply report zero values.
func readImageMetadata(path string) (taken time.Time, width, height, orientation int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if x, err := exif.Decode(f); err == nil {
		if tm, err := x.DateTime(); err == nil {
			taken = tm
		}
		width = exifInt(x, exif.PixelXDimension)
		height = exifInt(x, exif.PixelYDimension)
		if width == 0 {
			width = exifInt(x, exif.ImageWidth)
		}
		if height == 0 {
			height = exifInt(x, exif.ImageLength)
		}
		orientation = exifInt(x, exif.Orientation)
	}

	if width == 0 || height == 0 {
		if _, err := f.Seek(0, io.SeekStart); err == nil {
			if cfg, _, err := image.DecodeConfig(f); err == nil {
				width, height = cfg.Width, cfg.Height
			}
		}
	}
	return
}

func exifInt(x *exif.Exif, field exif.FieldName) int {
	tag, err := x.Get(field)
	if err != nil {
		return 0
	}
	val, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return val
}

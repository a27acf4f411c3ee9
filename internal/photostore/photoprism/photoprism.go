// Package photoprism reads the photo inventory straight out of a
// PhotoPrism MariaDB database. Only the photos and files tables are
// touched, read-only; PhotoPrism stays the owner of its schema.
package photoprism

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

type fileRef struct {
	name        string
	orientation int
}

// Store lists photos from a PhotoPrism instance and serves their pixels
// from the originals directory.
type Store struct {
	db        *sql.DB
	originals string

	mu    sync.RWMutex
	files map[int64]fileRef
}

// NewStore connects to the PhotoPrism database. The DSN is a
// go-sql-driver/mysql DSN; parseTime is added when missing because
// taken_at scans as time.Time. originalsDir is PhotoPrism's originals
// folder, used to resolve file names to paths.
func NewStore(dsn, originalsDir string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("PhotoPrism database DSN is required")
	}

	db, err := sql.Open("mysql", ensureParseTime(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open PhotoPrism database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PhotoPrism database: %w", err)
	}

	return &Store{db: db, originals: originalsDir, files: make(map[int64]fileRef)}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// ListPhotos returns a record per photo with a primary, present file.
// The bucket is the folder the original lives in.
func (s *Store) ListPhotos(ctx context.Context) ([]photo.Photo, error) {
	const query = `
		SELECT p.id, p.taken_at, f.file_name, f.file_size,
		       f.file_width, f.file_height, f.file_orientation
		FROM photos p
		JOIN files f ON f.photo_id = p.id AND f.file_primary = 1
		WHERE p.deleted_at IS NULL
		  AND f.deleted_at IS NULL
		  AND f.file_missing = 0
		ORDER BY p.taken_at, p.id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	var photos []photo.Photo
	files := make(map[int64]fileRef)

	for rows.Next() {
		var (
			id                          int64
			takenAt                     sql.NullTime
			name                        string
			size, width, height, orient sql.NullInt64
		)
		if err := rows.Scan(&id, &takenAt, &name, &size, &width, &height, &orient); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		var takenMs int64
		if takenAt.Valid {
			takenMs = takenAt.Time.UnixMilli()
		}
		photos = append(photos, photo.Photo{
			ID:          id,
			TimestampMs: takenMs,
			SizeBytes:   size.Int64,
			Width:       int(width.Int64),
			Height:      int(height.Int64),
			Orientation: int(orient.Int64),
			BucketName:  bucketName(name),
		})
		files[id] = fileRef{name: name, orientation: int(orient.Int64)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()

	photo.SortByTimestamp(photos)
	return photos, nil
}

// Pixels reads the original file for a photo listed by this store.
func (s *Store) Pixels(ctx context.Context, p photo.Photo) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	ref, ok := s.files[p.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("unknown photo id %d", p.ID)
	}
	full := filepath.Join(s.originals, filepath.FromSlash(ref.name))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", full, err)
	}
	return data, ref.orientation, nil
}

// bucketName is the immediate parent folder of a file name as stored by
// PhotoPrism (slash-separated, relative to originals).
func bucketName(name string) string {
	dir := path.Dir(name)
	if dir == "." || dir == "/" {
		return ""
	}
	return path.Base(dir)
}

func ensureParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

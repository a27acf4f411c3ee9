// Package photostore provides the photo inventories a detection run works
// over: a filesystem walker with EXIF metadata and a PhotoPrism MariaDB
// adapter (subpackage photoprism). Stores report photo records; the
// similarity engine never touches files or databases itself.
package photostore

import (
	"context"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// Store lists the photos available for detection.
type Store interface {
	ListPhotos(ctx context.Context) ([]photo.Photo, error)
}

package fingerprint

import (
	"context"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// Source yields decodable pixels for a photo. Implementations live with the
// photo stores; errors from a Source become per-photo fingerprint failures
// and never abort a detection run.
type Source interface {
	// Pixels returns the raw encoded image bytes and the EXIF-style
	// orientation (1-8, 0 when unknown) for the given photo.
	Pixels(ctx context.Context, p photo.Photo) (data []byte, orientation int, err error)
}

// Package photo defines the immutable photo record consumed by the
// similarity engine and the metadata helpers shared across it.
package photo

import (
	"sort"
)

// Photo is a single photo record as reported by a photo store.
// The engine treats it as read-only input; it never mutates or persists photos.
type Photo struct {
	ID          int64  `json:"id"`
	TimestampMs int64  `json:"timestamp_ms"`
	SizeBytes   int64  `json:"size_bytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Orientation int    `json:"orientation,omitempty"` // EXIF orientation 1-8, 0 when unknown
	BucketName  string `json:"bucket_name,omitempty"` // source folder or album label
}

// defaultAspectRatio is used when a photo reports invalid dimensions.
const defaultAspectRatio = 0.75

// ActualWidth returns the display width after orientation correction.
// Stores report raw file dimensions; for orientations 5-8 (90° rotations)
// the display dimensions are swapped.
func (p Photo) ActualWidth() int {
	if p.Orientation >= 5 && p.Orientation <= 8 {
		return p.Height
	}
	return p.Width
}

// ActualHeight returns the display height after orientation correction.
func (p Photo) ActualHeight() int {
	if p.Orientation >= 5 && p.Orientation <= 8 {
		return p.Width
	}
	return p.Height
}

// AspectRatio returns actual width divided by actual height,
// or 0.75 when the dimensions are invalid.
func (p Photo) AspectRatio() float64 {
	w, h := p.ActualWidth(), p.ActualHeight()
	if w <= 0 || h <= 0 {
		return defaultAspectRatio
	}
	return float64(w) / float64(h)
}

// SameResolution reports whether two photos share identical display dimensions.
func SameResolution(a, b Photo) bool {
	return a.ActualWidth() == b.ActualWidth() && a.ActualHeight() == b.ActualHeight()
}

// SameBucket reports whether two photos carry the same non-empty bucket label.
// Labels are compared in normalized form so folder names from different
// indexers ("Léto 2024" vs "leto 2024") still match.
func SameBucket(a, b Photo) bool {
	ba, bb := NormalizeBucket(a.BucketName), NormalizeBucket(b.BucketName)
	return ba != "" && ba == bb
}

// SortByTimestamp sorts photos by timestamp ascending, breaking ties by id
// so the order is stable across runs.
func SortByTimestamp(photos []Photo) {
	sort.Slice(photos, func(i, j int) bool {
		if photos[i].TimestampMs != photos[j].TimestampMs {
			return photos[i].TimestampMs < photos[j].TimestampMs
		}
		return photos[i].ID < photos[j].ID
	})
}

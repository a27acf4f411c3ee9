// Package fingerprint computes 64-bit difference hashes (dHash) for photos
// and caches the outcomes. A fingerprint is a lossy similarity signal, not
// an identity proof: two visually close photos produce hashes with a small
// Hamming distance.
package fingerprint

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// FailReason classifies why a fingerprint could not be computed.
type FailReason string

const (
	FailUnreadable FailReason = "unreadable_source"
	FailBadDims    FailReason = "invalid_dimensions"
	FailDecode     FailReason = "decode_error"
	FailTooLarge   FailReason = "too_large"
)

// Result is the outcome of one fingerprint attempt. Hash 0 is a legal
// fingerprint, so OK must be checked instead of comparing against zero.
type Result struct {
	Hash   uint64
	OK     bool
	Reason FailReason // set only when !OK
}

// Success wraps a computed hash.
func Success(hash uint64) Result {
	return Result{Hash: hash, OK: true}
}

// Failure wraps a failure reason.
func Failure(reason FailReason) Result {
	return Result{Reason: reason}
}

const (
	// dHash grid: 9 columns give 8 horizontal differences per row.
	hashWidth  = 9
	hashHeight = 8

	// shortSideTarget is the smallest short side the coarse downsample
	// may produce before the exact 9x8 resize.
	shortSideTarget = 64

	// defaultMaxPixels rejects decodes that would allocate absurd amounts
	// of memory (~92 MP ≈ 350 MB RGBA). Mapped to FailTooLarge.
	defaultMaxPixels = 92_000_000
)

// Computer turns photo pixels into difference hashes.
type Computer struct {
	maxPixels int
}

// NewComputer creates a Computer with the default decode guard.
func NewComputer() *Computer {
	return &Computer{maxPixels: defaultMaxPixels}
}

// Compute decodes the image data at reduced resolution, corrects the
// EXIF-style orientation (1-8) and computes the difference hash.
// Every failure mode maps to a Result; Compute never panics on bad input.
func (c *Computer) Compute(data []byte, orientation int) Result {
	if len(data) == 0 {
		return Failure(FailUnreadable)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Failure(FailDecode)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Failure(FailBadDims)
	}
	if c.maxPixels > 0 && cfg.Width*cfg.Height > c.maxPixels {
		return Failure(FailTooLarge)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Failure(FailDecode)
	}

	img = downsample(img)
	img = orient(img, orientation)
	return Success(computeDHash(img))
}

// downsample applies the largest power-of-two reduction that keeps the
// shorter side at or above the target, so decode output stays bounded while
// the exact 9x8 resize still has plenty of signal to work with.
func downsample(img image.Image) image.Image {
	bounds := img.Bounds()
	short := bounds.Dx()
	if bounds.Dy() < short {
		short = bounds.Dy()
	}

	factor := 1
	for short/(factor*2) >= shortSideTarget {
		factor *= 2
	}
	if factor == 1 {
		return img
	}
	return imaging.Resize(img, bounds.Dx()/factor, bounds.Dy()/factor, imaging.Box)
}

// orient maps the stored EXIF orientation back to display pixels so the
// hash is rotation-invariant. Unknown values pass through unchanged.
func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// computeDHash computes a 64-bit difference hash.
func computeDHash(img image.Image) uint64 {
	// 1. Resize to 9x8 (9 columns for 8 differences per row)
	resized := resizeImage(img, hashWidth, hashHeight)

	// 2. Convert to integer luma
	gray := toLuma(resized)

	// 3. Compare adjacent pixels horizontally, row-major, MSB first:
	//    8 rows * 8 comparisons = 64 bits
	var hash uint64
	bit := 63
	for y := 0; y < hashHeight; y++ {
		for x := 0; x < hashHeight; x++ {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}

	return hash
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toLuma converts an image to a 2D array of luma values (0-255) using the
// integer ITU-R BT.601 formula (299R + 587G + 114B) / 1000.
func toLuma(img *image.RGBA) [][]int {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]int, width)
	for x := 0; x < width; x++ {
		gray[x] = make([]int, height)
		for y := 0; y < height; y++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := (299*int(r>>8) + 587*int(g>>8) + 114*int(b>>8)) / 1000
			gray[x][y] = luma
		}
	}

	return gray
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
// It is symmetric, zero for equal hashes and bounded by [0, 64].
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

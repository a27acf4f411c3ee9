package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-dedupe/internal/engine"
	"github.com/kozaktomas/photo-dedupe/internal/kv"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// stubSource serves the same pixels for every photo.
type stubSource struct {
	img []byte
}

func (s *stubSource) Pixels(ctx context.Context, p photo.Photo) ([]byte, int, error) {
	return s.img, 0, nil
}

var errStubList = errors.New("stub list failure")

// stubPhotoStore serves a fixed photo list.
type stubPhotoStore struct {
	photos []photo.Photo
	err    error
}

func (s *stubPhotoStore) ListPhotos(ctx context.Context) ([]photo.Photo, error) {
	return s.photos, s.err
}

func gradientPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for x := range 16 {
		for y := range 12 {
			img.Set(x, y, color.RGBA{uint8(x * 15), uint8(x * 15), uint8(x * 15), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// burst builds n photos spaced two seconds apart so they cluster together.
func burst(startID, startMs int64, n int) []photo.Photo {
	photos := make([]photo.Photo, n)
	for i := range n {
		photos[i] = photo.Photo{
			ID:          startID + int64(i),
			TimestampMs: startMs + int64(i)*2000,
			Width:       4000,
			Height:      3000,
			SizeBytes:   2_000_000,
			BucketName:  "trip",
		}
	}
	return photos
}

// testEngine creates an engine over a fresh in-memory store.
func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return engine.New(engine.Options{
		Store:  kv.NewMemoryStore(),
		Source: &stubSource{img: gradientPNG(t)},
	})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

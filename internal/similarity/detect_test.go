package similarity

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/kozaktomas/photo-dedupe/internal/fingerprint"
	"github.com/kozaktomas/photo-dedupe/internal/kv"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// fakeSource serves the same gradient image for every photo unless an
// override or error is registered. It counts calls per photo so tests can
// verify the fail-once and cache-hit behavior.
type fakeSource struct {
	mu     sync.Mutex
	calls  map[int64]int
	errs   map[int64]error
	onCall func(id int64)

	img []byte
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		calls: make(map[int64]int),
		errs:  make(map[int64]error),
		img:   gradientPNG(90, 80),
	}
}

func (f *fakeSource) Pixels(ctx context.Context, p photo.Photo) ([]byte, int, error) {
	f.mu.Lock()
	f.calls[p.ID]++
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(p.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err, ok := f.errs[p.ID]; ok {
		return nil, 0, err
	}
	return f.img, 0, nil
}

func (f *fakeSource) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func gradientPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / width)
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func newTestDetector(store kv.Store, source fingerprint.Source) *Detector {
	return NewDetector(
		fingerprint.NewComputer(),
		fingerprint.NewCache(store),
		source,
		NewScorer(DefaultThresholds()),
	)
}

// burstPhotos builds n photos starting at startMs, spaced 2s apart, all
// sharing resolution, size and bucket.
func burstPhotos(startID, startMs int64, n int) []photo.Photo {
	photos := make([]photo.Photo, n)
	for i := range n {
		photos[i] = testPhoto(startID+int64(i), startMs+int64(i)*2000, 4000, 3000, 2_000_000, "trip")
	}
	return photos
}

func TestDetectScenario(t *testing.T) {
	// Three bursts of 4, 3 and 5 photos, far enough apart that no
	// cross-burst pair fits the candidate window, plus two isolated photos.
	var photos []photo.Photo
	photos = append(photos, burstPhotos(1, 0, 4)...)
	photos = append(photos, burstPhotos(10, 700_000, 3)...)
	photos = append(photos, burstPhotos(20, 1_400_000, 5)...)
	photos = append(photos,
		testPhoto(30, 2_100_000, 4000, 3000, 2_000_000, "trip"),
		testPhoto(31, 2_800_000, 4000, 3000, 2_000_000, "trip"),
	)

	store := kv.NewMemoryStore()
	source := newFakeSource()
	d := newTestDetector(store, source)

	res, err := d.Detect(context.Background(), photos, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(res.Groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(res.Groups))
	}
	sizes := []int{len(res.Groups[0].Photos), len(res.Groups[1].Photos), len(res.Groups[2].Photos)}
	if sizes[0] != 5 || sizes[1] != 4 || sizes[2] != 3 {
		t.Errorf("group sizes = %v; want [5 4 3]", sizes)
	}
	if len(res.Orphans) != 2 {
		t.Fatalf("got %d orphans, want 2", len(res.Orphans))
	}
	if res.Orphans[0].ID != 30 || res.Orphans[1].ID != 31 {
		t.Errorf("orphan ids = [%d %d]; want [30 31]", res.Orphans[0].ID, res.Orphans[1].ID)
	}
	assertGroupsDisjoint(t, res.Groups)

	// The isolated photos never joined a candidate pair, so they must not
	// have been fingerprinted.
	if store.Len() != 12 {
		t.Errorf("cached %d fingerprints, want 12 (candidates only)", store.Len())
	}
	if source.calls[30] != 0 || source.calls[31] != 0 {
		t.Error("isolated photos were fingerprinted")
	}
}

func TestDetectProgress(t *testing.T) {
	photos := burstPhotos(1, 0, 4)

	type update struct {
		stage    Stage
		fraction float64
	}
	var updates []update
	d := newTestDetector(kv.NewMemoryStore(), newFakeSource())
	_, err := d.Detect(context.Background(), photos, func(stage Stage, fraction float64) {
		updates = append(updates, update{stage, fraction})
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(updates) < 2 {
		t.Fatalf("got %d progress updates, want at least start and done", len(updates))
	}
	if updates[0].stage != StageStarting {
		t.Errorf("first stage = %q; want %q", updates[0].stage, StageStarting)
	}
	last := updates[len(updates)-1]
	if last.stage != StageDone || last.fraction != 1.0 {
		t.Errorf("last update = {%q, %v}; want {%q, 1.0}", last.stage, last.fraction, StageDone)
	}
	for i := 1; i < len(updates); i++ {
		if updates[i].fraction < updates[i-1].fraction {
			t.Errorf("progress went backwards: %v after %v", updates[i].fraction, updates[i-1].fraction)
		}
	}
}

func TestDetectEmptyInput(t *testing.T) {
	d := newTestDetector(kv.NewMemoryStore(), newFakeSource())

	res, err := d.Detect(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Groups) != 0 || len(res.Orphans) != 0 {
		t.Errorf("got %d groups and %d orphans, want empty result", len(res.Groups), len(res.Orphans))
	}
}

func TestDetectCancellation(t *testing.T) {
	photos := burstPhotos(1, 0, 8)

	store := kv.NewMemoryStore()
	source := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	source.onCall = func(int64) { cancel() }

	d := newTestDetector(store, source)
	res, err := d.Detect(ctx, photos, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Detect error = %v; want context.Canceled", err)
	}
	if res != nil {
		t.Error("cancelled run must not publish a result")
	}
	if store.Len() != 0 {
		t.Errorf("cancelled chunk wrote %d entries to the cache", store.Len())
	}
}

func TestDetectUnreadablePhoto(t *testing.T) {
	photos := burstPhotos(1, 0, 2)

	store := kv.NewMemoryStore()
	source := newFakeSource()
	source.errs[2] = errors.New("file vanished")

	d := newTestDetector(store, source)
	res, err := d.Detect(context.Background(), photos, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// Strong metadata still connects the pair under the stricter
	// fingerprint-less rule.
	if len(res.Groups) != 1 || len(res.Groups[0].Photos) != 2 {
		t.Fatalf("got %v groups, want one group of 2", len(res.Groups))
	}

	entries, err := fingerprint.NewCache(store).GetBatch(context.Background(), []int64{2})
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	e, ok := entries[2]
	if !ok || !e.Failed {
		t.Fatalf("photo 2 entry = %+v; want a permanent failure", e)
	}

	// A second run must not retry the failed photo.
	before := source.calls[2]
	if _, err := d.Detect(context.Background(), photos, nil); err != nil {
		t.Fatalf("second Detect failed: %v", err)
	}
	if source.calls[2] != before {
		t.Error("permanently failed photo was fingerprinted again")
	}
}

func TestDetectUsesCachedFingerprints(t *testing.T) {
	photos := burstPhotos(1, 0, 3)

	store := kv.NewMemoryStore()
	cache := fingerprint.NewCache(store)
	entries := make([]fingerprint.Entry, len(photos))
	for i, p := range photos {
		entries[i] = fingerprint.FromResult(p.ID, fingerprint.Success(0xBEEF))
	}
	if err := cache.PutBatch(context.Background(), entries); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	source := newFakeSource()
	d := newTestDetector(store, source)
	res, err := d.Detect(context.Background(), photos, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Groups) != 1 || len(res.Groups[0].Photos) != 3 {
		t.Fatalf("got %d groups, want one group of 3", len(res.Groups))
	}
	if source.totalCalls() != 0 {
		t.Errorf("source was called %d times, want 0 with a warm cache", source.totalCalls())
	}
}

package similarity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-dedupe/internal/fingerprint"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// Stage identifies a detection pipeline milestone.
type Stage string

const (
	StageStarting       Stage = "starting"
	StageFingerprinting Stage = "fingerprinting"
	StageClustering     Stage = "clustering"
	StageCollecting     Stage = "collecting"
	StageSaving         Stage = "saving"
	StageDone           Stage = "done"
)

// Progress fractions reported at stage completion. Fingerprinting
// interpolates between startFraction and fingerprintFraction per chunk.
const (
	startFraction       = 0.05
	fingerprintFraction = 0.60
	clusterFraction     = 0.80
	collectFraction     = 0.90
	saveFraction        = 0.95
)

// ProgressFunc receives pipeline progress updates. Fractions never
// decrease within one run.
type ProgressFunc func(stage Stage, fraction float64)

// Result is the outcome of one detection run. Orphans are the photos that
// ended up in no group, ordered by timestamp.
type Result struct {
	Groups  []Group       `json:"groups"`
	Orphans []photo.Photo `json:"orphans"`
}

const (
	defaultChunkSize   = 10
	defaultDecodeLimit = 3
)

// Detector runs the similarity pipeline: metadata candidate scan,
// fingerprinting, constrained clustering and group collection.
type Detector struct {
	computer *fingerprint.Computer
	cache    *fingerprint.Cache
	source   fingerprint.Source
	scorer   *Scorer

	chunkSize   int
	decodeLimit int
}

func NewDetector(computer *fingerprint.Computer, cache *fingerprint.Cache, source fingerprint.Source, scorer *Scorer) *Detector {
	return &Detector{
		computer:    computer,
		cache:       cache,
		source:      source,
		scorer:      scorer,
		chunkSize:   defaultChunkSize,
		decodeLimit: defaultDecodeLimit,
	}
}

// candidatePair indexes two photos of the sorted input whose metadata
// score cleared the candidate threshold.
type candidatePair struct {
	i, j int
}

// Detect clusters the given photos into similarity groups. The input
// slice is not modified. Cancellation aborts between stages and between
// fingerprint chunks; a cancelled run returns ctx.Err() and publishes no
// partial result, though fingerprints of completed chunks stay cached.
func (d *Detector) Detect(ctx context.Context, photos []photo.Photo, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(Stage, float64) {}
	}
	progress(StageStarting, startFraction)

	sorted := make([]photo.Photo, len(photos))
	copy(sorted, photos)
	photo.SortByTimestamp(sorted)

	pairs, isCand := d.scanCandidates(sorted)

	entries, err := d.fingerprintCandidates(ctx, sorted, isCand, progress)
	if err != nil {
		return nil, err
	}
	progress(StageFingerprinting, fingerprintFraction)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Dense re-index: only photos from at least one candidate pair enter
	// the clustering arena.
	arenaIdx := make([]int, len(sorted))
	cands := make([]Candidate, 0, len(entries))
	for i, p := range sorted {
		arenaIdx[i] = -1
		if !isCand[i] {
			continue
		}
		arenaIdx[i] = len(cands)
		cands = append(cands, Candidate{Photo: p, Fingerprint: entryFingerprint(entries, p.ID)})
	}

	cb := newClusterBuilder(d.scorer, cands)
	for _, pr := range pairs {
		cb.ProcessPair(arenaIdx[pr.i], arenaIdx[pr.j])
	}
	progress(StageClustering, clusterFraction)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups, orphans := collectGroups(cb)
	for i, p := range sorted {
		if !isCand[i] {
			orphans = append(orphans, p)
		}
	}
	photo.SortByTimestamp(orphans)
	progress(StageCollecting, collectFraction)

	progress(StageSaving, saveFraction)
	progress(StageDone, 1.0)

	return &Result{Groups: groups, Orphans: orphans}, nil
}

// scanCandidates walks timestamp-ordered photos with a bounded window and
// returns the pairs whose metadata score clears the candidate threshold,
// plus a per-photo flag marking membership in at least one pair. The inner
// loop breaks as soon as the window is exceeded, so the scan stays close
// to linear on typical libraries.
func (d *Detector) scanCandidates(sorted []photo.Photo) ([]candidatePair, []bool) {
	windowMs := d.scorer.Thresholds().CandidateWindowMs
	isCand := make([]bool, len(sorted))
	var pairs []candidatePair
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].TimestampMs-sorted[i].TimestampMs > windowMs {
				break
			}
			if !d.scorer.IsCandidate(d.scorer.MetaScore(sorted[i], sorted[j])) {
				continue
			}
			pairs = append(pairs, candidatePair{i: i, j: j})
			isCand[i], isCand[j] = true, true
		}
	}
	return pairs, isCand
}

// fingerprintCandidates loads cached fingerprint entries for all candidate
// photos and computes the missing ones in fixed-size chunks. Each chunk is
// written back to the cache as one batch before the next chunk starts.
func (d *Detector) fingerprintCandidates(ctx context.Context, sorted []photo.Photo, isCand []bool, progress ProgressFunc) (map[int64]fingerprint.Entry, error) {
	var candPhotos []photo.Photo
	for i, p := range sorted {
		if isCand[i] {
			candPhotos = append(candPhotos, p)
		}
	}
	ids := make([]int64, len(candPhotos))
	for i, p := range candPhotos {
		ids[i] = p.ID
	}

	entries, err := d.cache.GetBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached fingerprints: %w", err)
	}

	var pending []photo.Photo
	for _, p := range candPhotos {
		if _, ok := entries[p.ID]; !ok {
			pending = append(pending, p)
		}
	}

	total := (len(pending) + d.chunkSize - 1) / d.chunkSize
	for ci := 0; ci < total; ci++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo := ci * d.chunkSize
		hi := min(lo+d.chunkSize, len(pending))
		chunk, err := d.computeChunk(ctx, pending[lo:hi])
		if err != nil {
			return nil, err
		}
		if err := d.cache.PutBatch(ctx, chunk); err != nil {
			return nil, fmt.Errorf("failed to store fingerprints: %w", err)
		}
		for _, e := range chunk {
			entries[e.PhotoID] = e
		}
		frac := startFraction + (fingerprintFraction-startFraction)*float64(ci+1)/float64(total)
		progress(StageFingerprinting, frac)
	}
	return entries, nil
}

// computeChunk fingerprints one chunk of photos with bounded decode
// concurrency. A source or decode problem becomes a permanent failure
// entry for that photo; only cancellation aborts the chunk.
func (d *Detector) computeChunk(ctx context.Context, chunk []photo.Photo) ([]fingerprint.Entry, error) {
	results := make([]fingerprint.Entry, len(chunk))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.decodeLimit)
	for i, p := range chunk {
		i, p := i, p
		g.Go(func() error {
			data, orientation, err := d.source.Pixels(gctx, p)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				results[i] = fingerprint.FromResult(p.ID, fingerprint.Failure(fingerprint.FailUnreadable))
				return nil
			}
			results[i] = fingerprint.FromResult(p.ID, d.computer.Compute(data, orientation))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func entryFingerprint(entries map[int64]fingerprint.Entry, id int64) Fingerprint {
	e, ok := entries[id]
	if !ok || e.Failed {
		return Fingerprint{}
	}
	return Fingerprint{Hash: e.Hash, Valid: true}
}

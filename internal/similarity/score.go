// Package similarity discovers groups of near-duplicate photos: a metadata
// pre-filter selects candidate pairs, fingerprints refine the comparison,
// and a constrained union-find with per-group representatives assembles the
// final groups without letting weak chains bridge unrelated clusters.
package similarity

import (
	"github.com/kozaktomas/photo-dedupe/internal/fingerprint"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// Fingerprint is an optional hash. Valid is false when the photo has no
// usable fingerprint (pending computation or permanently failed); hash 0
// with Valid set is a real fingerprint.
type Fingerprint struct {
	Hash  uint64
	Valid bool
}

// PairScore is the full (phase 2) comparison of one candidate pair.
// HashDist is meaningful only when HasDist is true.
type PairScore struct {
	Meta     int
	HashDist int
	HasDist  bool
}

// Scorer computes pair scores and connection decisions from the tuning
// tables. It is stateless and safe for concurrent use.
type Scorer struct {
	t Thresholds
}

// NewScorer creates a scorer with the given thresholds.
func NewScorer(t Thresholds) *Scorer {
	return &Scorer{t: t}
}

// Thresholds returns the scorer's tuning values.
func (s *Scorer) Thresholds() Thresholds {
	return s.t
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MetaScore computes the metadata-only similarity score for a photo pair.
// The same formula serves as the cheap phase-1 pre-filter and as the
// metadata component of the full phase-2 score.
func (s *Scorer) MetaScore(a, b photo.Photo) int {
	score := 0

	timeDiff := absInt64(a.TimestampMs - b.TimestampMs)
	for _, tier := range s.t.TimeTiers {
		if timeDiff < tier.WithinMs {
			score += tier.Points
			break
		}
	}

	if photo.SameResolution(a, b) {
		score += s.t.DimsExactPoints
	} else {
		aspectDiff := absFloat(a.AspectRatio() - b.AspectRatio())
		if aspectDiff < s.t.AspectTightDiff {
			score += s.t.AspectTightPoints
		} else if aspectDiff < s.t.AspectLooseDiff {
			score += s.t.AspectLoosePoints
		}
	}

	if rel, ok := relativeSizeDiff(a.SizeBytes, b.SizeBytes); ok {
		for _, tier := range s.t.SizeTiers {
			if rel < tier.MaxRelDiff {
				score += tier.Points
				break
			}
		}
	}

	if photo.SameBucket(a, b) {
		score += s.t.BucketPoints
	}

	return score
}

// relativeSizeDiff returns |a-b| relative to the larger size.
// Sizes of zero or less carry no signal and award no points.
func relativeSizeDiff(a, b int64) (float64, bool) {
	if a <= 0 || b <= 0 {
		return 0, false
	}
	larger := a
	if b > larger {
		larger = b
	}
	return float64(absInt64(a-b)) / float64(larger), true
}

// IsCandidate reports whether a pair's metadata score qualifies it for
// fingerprinting and the full connection decision.
func (s *Scorer) IsCandidate(metaScore int) bool {
	return metaScore >= s.t.CandidateMinScore
}

// ScorePair computes the full phase-2 score: the metadata formula plus the
// Hamming distance when both fingerprints exist.
func (s *Scorer) ScorePair(a, b photo.Photo, fa, fb Fingerprint) PairScore {
	ps := PairScore{Meta: s.MetaScore(a, b)}
	if fa.Valid && fb.Valid {
		ps.HashDist = fingerprint.HammingDistance(fa.Hash, fb.Hash)
		ps.HasDist = true
	}
	return ps
}

// ShouldConnect decides whether a candidate pair belongs in the same group.
//
// Without a fingerprint on both sides the rule is strict and metadata-only;
// with fingerprints the required metadata score relaxes as the hash
// distance tightens.
func (s *Scorer) ShouldConnect(a, b photo.Photo, ps PairScore) bool {
	if !ps.HasDist {
		timeDiff := absInt64(a.TimestampMs - b.TimestampMs)
		return timeDiff <= s.t.MetaOnlyMaxTimeDiffMs &&
			photo.SameResolution(a, b) &&
			ps.Meta >= s.t.MetaOnlyMinScore
	}

	for _, tier := range s.t.HashTiers {
		if ps.HashDist <= tier.MaxDist {
			return ps.Meta >= tier.MinScore
		}
	}
	return false
}

// ShouldConnectWithGroupSize applies ShouldConnect and escalates the
// requirements when the union would produce a large group, so big groups
// stop absorbing marginal matches.
func (s *Scorer) ShouldConnectWithGroupSize(a, b photo.Photo, ps PairScore, combinedSize int) bool {
	if !s.ShouldConnect(a, b, ps) {
		return false
	}

	if combinedSize > s.t.LargeGroupSize {
		if !ps.HasDist || ps.HashDist > s.t.LargeGroupMaxDist || ps.Meta < s.t.LargeGroupMinScore {
			return false
		}
	}
	if combinedSize > s.t.MaxGroupSize-s.t.HugeGroupMargin {
		if !ps.HasDist || ps.HashDist > s.t.HugeGroupMaxDist {
			return false
		}
	}
	return true
}

// RepConnect is the representative-level test used by anti-bridging: a photo
// may only join a group if it matches at least one of the group's
// representatives under this rule.
func (s *Scorer) RepConnect(a, b photo.Photo, fa, fb Fingerprint) bool {
	timeDiff := absInt64(a.TimestampMs - b.TimestampMs)

	if !fa.Valid || !fb.Valid {
		return timeDiff <= s.t.RepMetaMaxTimeDiffMs && photo.SameResolution(a, b)
	}

	dist := fingerprint.HammingDistance(fa.Hash, fb.Hash)
	if dist <= s.t.RepTightDist {
		return true
	}
	if dist <= s.t.RepLooseDist {
		return photo.SameResolution(a, b) || timeDiff <= s.t.RepLooseMaxTimeDiffMs
	}
	return false
}

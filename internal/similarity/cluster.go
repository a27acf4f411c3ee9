package similarity

import (
	"github.com/kozaktomas/photo-dedupe/internal/fingerprint"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// Candidate is one photo in the clustering arena together with its
// fingerprint lookup result.
type Candidate struct {
	Photo       photo.Photo
	Fingerprint Fingerprint
}

// repCount is the number of representatives tracked per group:
// earliest, latest and medoid.
const repCount = 3

// clusterBuilder is a constrained union-find over candidate indices.
//
// Each root additionally tracks its group size and three representative
// indices. The representatives power the anti-bridging check: a chain of
// barely-related pairs (A~B~C~D) must not transitively merge unrelated
// photos, so every new member has to match at least one representative of
// the group it joins. Parent, rank and size live in flat arrays indexed by
// candidate position; find is iterative, so stack depth does not grow with
// the photo count.
type clusterBuilder struct {
	scorer *Scorer
	cands  []Candidate

	parent []int
	rank   []int
	size   []int
	reps   [][repCount]int
}

// newClusterBuilder initializes the arena with every candidate as its own
// group. Candidates must already be sorted by timestamp.
func newClusterBuilder(scorer *Scorer, cands []Candidate) *clusterBuilder {
	n := len(cands)
	cb := &clusterBuilder{
		scorer: scorer,
		cands:  cands,
		parent: make([]int, n),
		rank:   make([]int, n),
		size:   make([]int, n),
		reps:   make([][repCount]int, n),
	}
	for i := 0; i < n; i++ {
		cb.parent[i] = i
		cb.size[i] = 1
		cb.reps[i] = [repCount]int{i, i, i}
	}
	return cb
}

// find returns the root of x, halving the path as it walks up.
func (cb *clusterBuilder) find(x int) int {
	for cb.parent[x] != x {
		cb.parent[x] = cb.parent[cb.parent[x]]
		x = cb.parent[x]
	}
	return x
}

// ProcessPair evaluates one candidate pair and merges their groups when
// every constraint passes. Returns true when a union happened.
func (cb *clusterBuilder) ProcessPair(i, j int) bool {
	ri, rj := cb.find(i), cb.find(j)
	if ri == rj {
		return false
	}

	a, b := cb.cands[i], cb.cands[j]
	ps := cb.scorer.ScorePair(a.Photo, b.Photo, a.Fingerprint, b.Fingerprint)
	combined := cb.size[ri] + cb.size[rj]

	if !cb.scorer.ShouldConnectWithGroupSize(a.Photo, b.Photo, ps, combined) {
		return false
	}
	if combined > cb.scorer.Thresholds().MaxGroupSize {
		return false
	}

	// Anti-bridging: both photos must match a representative on the other
	// side, not merely the one photo that triggered this pair.
	if !cb.connectsToReps(i, rj) || !cb.connectsToReps(j, ri) {
		return false
	}

	cb.union(ri, rj)
	return true
}

// connectsToReps reports whether candidate idx passes the representative
// test against at least one representative of root's group.
func (cb *clusterBuilder) connectsToReps(idx, root int) bool {
	a := cb.cands[idx]
	for _, rep := range cb.reps[root] {
		r := cb.cands[rep]
		if cb.scorer.RepConnect(a.Photo, r.Photo, a.Fingerprint, r.Fingerprint) {
			return true
		}
	}
	return false
}

// union merges two roots by rank and recomputes the merged group's
// representatives from the union of both prior representative sets.
func (cb *clusterBuilder) union(ra, rb int) {
	// Candidate representatives before the merge, first occurrence kept.
	repCands := make([]int, 0, 2*repCount)
	seen := make(map[int]bool, 2*repCount)
	for _, r := range cb.reps[ra] {
		if !seen[r] {
			seen[r] = true
			repCands = append(repCands, r)
		}
	}
	for _, r := range cb.reps[rb] {
		if !seen[r] {
			seen[r] = true
			repCands = append(repCands, r)
		}
	}

	if cb.rank[ra] < cb.rank[rb] {
		ra, rb = rb, ra
	}
	cb.parent[rb] = ra
	if cb.rank[ra] == cb.rank[rb] {
		cb.rank[ra]++
	}
	cb.size[ra] += cb.size[rb]

	cb.reps[ra] = [repCount]int{
		cb.earliest(repCands),
		cb.latest(repCands),
		cb.medoid(repCands),
	}
}

// earliest returns the candidate with the smallest timestamp,
// keeping the first occurrence on ties.
func (cb *clusterBuilder) earliest(cands []int) int {
	best := cands[0]
	for _, c := range cands[1:] {
		if cb.cands[c].Photo.TimestampMs < cb.cands[best].Photo.TimestampMs {
			best = c
		}
	}
	return best
}

// latest returns the candidate with the largest timestamp,
// keeping the first occurrence on ties.
func (cb *clusterBuilder) latest(cands []int) int {
	best := cands[0]
	for _, c := range cands[1:] {
		if cb.cands[c].Photo.TimestampMs > cb.cands[best].Photo.TimestampMs {
			best = c
		}
	}
	return best
}

// medoid returns the candidate with the lowest average Hamming distance to
// the other fingerprinted candidates. Candidates without a fingerprint
// cannot win; if none carries a fingerprint the first candidate is kept.
func (cb *clusterBuilder) medoid(cands []int) int {
	best := cands[0]
	bestAvg := -1.0

	for _, c := range cands {
		fc := cb.cands[c].Fingerprint
		if !fc.Valid {
			continue
		}

		sum, n := 0, 0
		for _, o := range cands {
			fo := cb.cands[o].Fingerprint
			if o == c || !fo.Valid {
				continue
			}
			sum += fingerprint.HammingDistance(fc.Hash, fo.Hash)
			n++
		}

		avg := 0.0
		if n > 0 {
			avg = float64(sum) / float64(n)
		}
		if bestAvg < 0 || avg < bestAvg {
			best = c
			bestAvg = avg
		}
	}
	return best
}

// Size returns the current group size of the candidate's root.
func (cb *clusterBuilder) Size(idx int) int {
	return cb.size[cb.find(idx)]
}

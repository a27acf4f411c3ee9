// Package review turns detection groups into a resumable review queue:
// batches sized for one screen, cooldowns keeping just-processed photos and
// groups out of rotation, and checkpoints that survive restarts.
package review

import (
	"github.com/kozaktomas/photo-dedupe/internal/photo"
	"github.com/kozaktomas/photo-dedupe/internal/similarity"
)

const (
	// MaxBatchSize is the hard cap on photos per batch.
	MaxBatchSize = 30
	// SmallGroupThreshold bounds how far small groups are chained together
	// and classifies a group as big enough to fill a batch alone.
	SmallGroupThreshold = 10
)

// Batch is one unit of review work: a flat photo list plus parallel group
// bookkeeping. Boundaries[k] is the index in Photos where group k starts;
// group k ends where group k+1 begins.
type Batch struct {
	Photos     []photo.Photo `json:"photos"`
	GroupIDs   []string      `json:"group_ids"`
	Boundaries []int         `json:"boundaries"`
}

// GroupPhotos returns the photos of the k-th group in the batch.
func (b *Batch) GroupPhotos(k int) []photo.Photo {
	end := len(b.Photos)
	if k+1 < len(b.Boundaries) {
		end = b.Boundaries[k+1]
	}
	return b.Photos[b.Boundaries[k]:end]
}

// PlanBatch assembles one batch from the available groups, consumed in
// order. A group is only added while the batch stays under MaxBatchSize;
// after an add, planning stops when the added group alone exceeds
// SmallGroupThreshold or the running total does. The result is either one
// large group or a contiguous run of small ones. Returns nil when no group
// is available.
func PlanBatch(available []similarity.Group) *Batch {
	if len(available) == 0 {
		return nil
	}

	b := &Batch{}
	for _, g := range available {
		if len(b.Photos) > 0 && len(b.Photos)+len(g.Photos) > MaxBatchSize {
			break
		}
		b.Boundaries = append(b.Boundaries, len(b.Photos))
		b.GroupIDs = append(b.GroupIDs, g.ID)
		b.Photos = append(b.Photos, g.Photos...)

		if len(g.Photos) > SmallGroupThreshold || len(b.Photos) > SmallGroupThreshold {
			break
		}
	}
	if len(b.Photos) == 0 {
		return nil
	}
	return b
}

// buildBatch concatenates the given groups verbatim, without planning
// limits. Checkpoint restore uses it to reproduce a previously planned
// batch from its surviving groups.
func buildBatch(groups []similarity.Group) *Batch {
	if len(groups) == 0 {
		return nil
	}
	b := &Batch{}
	for _, g := range groups {
		b.Boundaries = append(b.Boundaries, len(b.Photos))
		b.GroupIDs = append(b.GroupIDs, g.ID)
		b.Photos = append(b.Photos, g.Photos...)
	}
	return b
}

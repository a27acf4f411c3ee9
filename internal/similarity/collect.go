package similarity

import (
	"fmt"
	"sort"

	"github.com/kozaktomas/photo-dedupe/internal/photo"
)

// Group is a set of photos judged to be near-duplicates of each other.
// Photos are ordered by timestamp, ties broken by ID. StartMs and EndMs
// are the timestamps of the first and last member.
type Group struct {
	ID      string        `json:"id"`
	StartMs int64         `json:"startMs"`
	EndMs   int64         `json:"endMs"`
	Photos  []photo.Photo `json:"photos"`
}

// GroupID derives a stable identifier from the group's first photo.
func GroupID(first photo.Photo) string {
	return fmt.Sprintf("g%d-%d", first.TimestampMs, first.ID)
}

// collectGroups walks the arena in candidate order and materializes one
// group per root with two or more members. Photos whose root stayed a
// singleton are returned as orphans. Groups come out sorted by member
// count descending; groups of equal size keep the order in which their
// root was first seen, so repeated runs over the same input produce the
// same output.
func collectGroups(cb *clusterBuilder) ([]Group, []photo.Photo) {
	rootOrder := make([]int, 0, len(cb.cands))
	members := make(map[int][]photo.Photo, len(cb.cands))

	for i, c := range cb.cands {
		root := cb.find(i)
		if _, ok := members[root]; !ok {
			rootOrder = append(rootOrder, root)
		}
		members[root] = append(members[root], c.Photo)
	}

	groups := make([]Group, 0, len(rootOrder))
	var orphans []photo.Photo
	for _, root := range rootOrder {
		ph := members[root]
		if len(ph) < 2 {
			orphans = append(orphans, ph...)
			continue
		}
		groups = append(groups, Group{
			ID:      GroupID(ph[0]),
			StartMs: ph[0].TimestampMs,
			EndMs:   ph[len(ph)-1].TimestampMs,
			Photos:  ph,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Photos) > len(groups[j].Photos)
	})

	return groups, orphans
}

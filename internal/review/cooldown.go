package review

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/photo-dedupe/internal/kv"
	"github.com/kozaktomas/photo-dedupe/internal/photo"
	"github.com/kozaktomas/photo-dedupe/internal/similarity"
)

// Cooldown namespaces inside the shared key-value store.
const (
	imageKeyPrefix = "cd:img:"
	groupKeyPrefix = "cd:grp:"
)

const (
	defaultImageTTL = 24 * time.Hour
	defaultGroupTTL = 7 * 24 * time.Hour
)

// Record is one persisted cooldown entry. ExpiresAtMs of zero marks a
// permanent record that never re-admits its subject.
type Record struct {
	SubjectID     string `json:"subject_id"`
	ProcessedAtMs int64  `json:"processed_at_ms"`
	ExpiresAtMs   int64  `json:"expires_at_ms,omitempty"`
}

// Permanent reports whether the record never expires.
func (r Record) Permanent() bool { return r.ExpiresAtMs == 0 }

// Active reports whether the subject is still cooling down at nowMs.
// An expiring record stops being active the moment its expiry is reached.
func (r Record) Active(nowMs int64) bool {
	return r.Permanent() || nowMs < r.ExpiresAtMs
}

// Tracker records processed photos and groups in the key-value store and
// answers availability queries for batch planning and photo picking.
// Every mutation is a single batch write.
type Tracker struct {
	store    kv.Store
	imageTTL time.Duration
	groupTTL time.Duration
	now      func() time.Time
	rng      *rand.Rand
}

// NewTracker creates a tracker over the given store. Non-positive TTLs
// select the defaults (24h per image, 7 days per group).
func NewTracker(store kv.Store, imageTTL, groupTTL time.Duration) *Tracker {
	if imageTTL <= 0 {
		imageTTL = defaultImageTTL
	}
	if groupTTL <= 0 {
		groupTTL = defaultGroupTTL
	}
	return &Tracker{
		store:    store,
		imageTTL: imageTTL,
		groupTTL: groupTTL,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
}

func imageKey(photoID int64) string {
	return imageKeyPrefix + strconv.FormatInt(photoID, 10)
}

// PickImages selects up to count photos from the candidates, shuffling the
// ones not currently cooling down and backfilling any shortfall from the
// cooling set ordered soonest-expiring first. The picks are recorded with
// the image TTL before returning.
func (t *Tracker) PickImages(ctx context.Context, candidates []photo.Photo, count int) ([]photo.Photo, error) {
	if count <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	keys := make([]string, len(candidates))
	for i, p := range candidates {
		keys[i] = imageKey(p.ID)
	}
	raw, err := t.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read image cooldowns: %w", err)
	}

	nowMs := t.now().UnixMilli()
	type coolingPhoto struct {
		photo     photo.Photo
		expiresAt int64
	}
	var available []photo.Photo
	var cooling []coolingPhoto
	for i, p := range candidates {
		rec, ok := decodeRecord(raw[keys[i]])
		if ok && rec.Active(nowMs) {
			cooling = append(cooling, coolingPhoto{photo: p, expiresAt: rec.ExpiresAtMs})
			continue
		}
		available = append(available, p)
	}

	t.rng.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})

	picked := available
	if len(picked) > count {
		picked = picked[:count]
	} else if len(picked) < count {
		sort.SliceStable(cooling, func(i, j int) bool {
			return cooling[i].expiresAt < cooling[j].expiresAt
		})
		for _, c := range cooling {
			if len(picked) == count {
				break
			}
			picked = append(picked, c.photo)
		}
	}

	if err := t.recordPicks(ctx, picked, nowMs); err != nil {
		return nil, err
	}
	return picked, nil
}

func (t *Tracker) recordPicks(ctx context.Context, picked []photo.Photo, nowMs int64) error {
	if len(picked) == 0 {
		return nil
	}
	batch := make(map[string][]byte, len(picked))
	for _, p := range picked {
		rec := Record{
			SubjectID:     strconv.FormatInt(p.ID, 10),
			ProcessedAtMs: nowMs,
			ExpiresAtMs:   nowMs + t.imageTTL.Milliseconds(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode cooldown record: %w", err)
		}
		batch[imageKey(p.ID)] = data
	}
	if err := t.store.PutBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to write image cooldowns: %w", err)
	}
	return nil
}

// MarkProcessed records the given groups as processed. An expiring record
// re-admits the group once the group TTL elapses; a permanent one excludes
// it from batches forever.
func (t *Tracker) MarkProcessed(ctx context.Context, groupIDs []string, permanent bool) error {
	if len(groupIDs) == 0 {
		return nil
	}
	nowMs := t.now().UnixMilli()
	batch := make(map[string][]byte, len(groupIDs))
	for _, id := range groupIDs {
		rec := Record{SubjectID: id, ProcessedAtMs: nowMs}
		if !permanent {
			rec.ExpiresAtMs = nowMs + t.groupTTL.Milliseconds()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode cooldown record: %w", err)
		}
		batch[groupKeyPrefix+id] = data
	}
	if err := t.store.PutBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to write group cooldowns: %w", err)
	}
	return nil
}

// FilterAvailable returns the groups without an active cooldown record,
// preserving input order.
func (t *Tracker) FilterAvailable(ctx context.Context, groups []similarity.Group) ([]similarity.Group, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = groupKeyPrefix + g.ID
	}
	raw, err := t.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read group cooldowns: %w", err)
	}

	nowMs := t.now().UnixMilli()
	available := make([]similarity.Group, 0, len(groups))
	for i, g := range groups {
		if rec, ok := decodeRecord(raw[keys[i]]); ok && rec.Active(nowMs) {
			continue
		}
		available = append(available, g)
	}
	return available, nil
}

// PermanentlyProcessed reports which of the given group ids carry a
// permanent record.
func (t *Tracker) PermanentlyProcessed(ctx context.Context, groupIDs []string) (map[string]bool, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		keys[i] = groupKeyPrefix + id
	}
	raw, err := t.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read group cooldowns: %w", err)
	}

	processed := make(map[string]bool, len(groupIDs))
	for i, id := range groupIDs {
		if rec, ok := decodeRecord(raw[keys[i]]); ok && rec.Permanent() {
			processed[id] = true
		}
	}
	return processed, nil
}

// AllProcessed reports whether every given group id is permanently
// processed, which marks an owner's review as complete. An empty id list
// is not considered processed.
func (t *Tracker) AllProcessed(ctx context.Context, groupIDs []string) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	processed, err := t.PermanentlyProcessed(ctx, groupIDs)
	if err != nil {
		return false, err
	}
	return len(processed) == len(groupIDs), nil
}

// CleanupStale removes image cooldowns for photos outside the valid set,
// group cooldowns whose anchor photo is gone, and expired records of both
// kinds. Returns the number of removed records.
func (t *Tracker) CleanupStale(ctx context.Context, validPhotoIDs map[int64]bool) (int, error) {
	nowMs := t.now().UnixMilli()

	stale, err := t.staleImageKeys(ctx, validPhotoIDs, nowMs)
	if err != nil {
		return 0, err
	}
	staleGroups, err := t.staleGroupKeys(ctx, validPhotoIDs, nowMs)
	if err != nil {
		return 0, err
	}
	stale = append(stale, staleGroups...)
	if len(stale) == 0 {
		return 0, nil
	}

	if err := t.store.DeleteBatch(ctx, stale); err != nil {
		return 0, fmt.Errorf("failed to delete stale cooldowns: %w", err)
	}
	return len(stale), nil
}

func (t *Tracker) staleImageKeys(ctx context.Context, validPhotoIDs map[int64]bool, nowMs int64) ([]string, error) {
	keys, err := t.store.List(ctx, imageKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list image cooldowns: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := t.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read image cooldowns: %w", err)
	}

	var stale []string
	for _, key := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, imageKeyPrefix), 10, 64)
		if err != nil || !validPhotoIDs[id] {
			stale = append(stale, key)
			continue
		}
		if rec, ok := decodeRecord(raw[key]); !ok || !rec.Active(nowMs) {
			stale = append(stale, key)
		}
	}
	return stale, nil
}

func (t *Tracker) staleGroupKeys(ctx context.Context, validPhotoIDs map[int64]bool, nowMs int64) ([]string, error) {
	keys, err := t.store.List(ctx, groupKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list group cooldowns: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := t.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read group cooldowns: %w", err)
	}

	var stale []string
	for _, key := range keys {
		groupID := strings.TrimPrefix(key, groupKeyPrefix)
		if anchor, ok := groupAnchorPhoto(groupID); ok && !validPhotoIDs[anchor] {
			stale = append(stale, key)
			continue
		}
		if rec, ok := decodeRecord(raw[key]); !ok || !rec.Active(nowMs) {
			stale = append(stale, key)
		}
	}
	return stale, nil
}

// groupAnchorPhoto extracts the first-photo id embedded in a group id of
// the form g<startMs>-<photoID>.
func groupAnchorPhoto(groupID string) (int64, bool) {
	idx := strings.LastIndexByte(groupID, '-')
	if !strings.HasPrefix(groupID, "g") || idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(groupID[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func decodeRecord(data []byte) (Record, bool) {
	if len(data) == 0 {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false
	}
	return rec, true
}

package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kozaktomas/photo-dedupe/internal/kv"
)

// keyPrefix namespaces fingerprint entries inside the shared key-value store.
const keyPrefix = "fp:"

// Entry is the persisted fingerprint record for one photo.
//
// A photo with no entry at all is "pending computation". An entry with
// Failed set is a permanent failure: expensive decode failures (corrupt
// files, oversized images) are recorded once and never retried. Only a
// full cache clear resets them.
type Entry struct {
	PhotoID int64  `json:"photo_id"`
	Hash    uint64 `json:"hash"`
	Failed  bool   `json:"failed,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// FromResult converts a computation result into a cache entry.
func FromResult(photoID int64, r Result) Entry {
	if r.OK {
		return Entry{PhotoID: photoID, Hash: r.Hash}
	}
	return Entry{PhotoID: photoID, Failed: true, Reason: string(r.Reason)}
}

// Cache memoizes fingerprint outcomes in a key-value store.
type Cache struct {
	store kv.Store
}

// NewCache creates a cache over the given store.
func NewCache(store kv.Store) *Cache {
	return &Cache{store: store}
}

func entryKey(photoID int64) string {
	return keyPrefix + strconv.FormatInt(photoID, 10)
}

// GetBatch returns the cached entries for the given photo ids.
// Photos without an entry are absent from the result map.
func (c *Cache) GetBatch(ctx context.Context, photoIDs []int64) (map[int64]Entry, error) {
	keys := make([]string, len(photoIDs))
	for i, id := range photoIDs {
		keys[i] = entryKey(id)
	}

	raw, err := c.store.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint cache: %w", err)
	}

	entries := make(map[int64]Entry, len(raw))
	for _, id := range photoIDs {
		data, ok := raw[entryKey(id)]
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Corrupt record: treat as pending so it gets recomputed.
			continue
		}
		entries[id] = entry
	}
	return entries, nil
}

// PutBatch stores all entries atomically.
func (c *Cache) PutBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode fingerprint entry %d: %w", entry.PhotoID, err)
		}
		batch[entryKey(entry.PhotoID)] = data
	}

	if err := c.store.PutBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to write fingerprint cache: %w", err)
	}
	return nil
}

// Clear wipes every fingerprint entry, including permanent failures.
// This is the only way a failed photo becomes eligible for recomputation.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx, keyPrefix); err != nil {
		return fmt.Errorf("failed to clear fingerprint cache: %w", err)
	}
	return nil
}

// CleanupStale removes entries whose photo id is not in the valid set.
// Returns the number of removed entries.
func (c *Cache) CleanupStale(ctx context.Context, validIDs map[int64]bool) (int, error) {
	keys, err := c.store.List(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list fingerprint cache: %w", err)
	}

	var stale []string
	for _, key := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, keyPrefix), 10, 64)
		if err != nil || !validIDs[id] {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := c.store.DeleteBatch(ctx, stale); err != nil {
		return 0, fmt.Errorf("failed to delete stale fingerprints: %w", err)
	}
	return len(stale), nil
}

// Stats summarizes cache contents for diagnostics.
type Stats struct {
	Entries int `json:"entries"`
	Failed  int `json:"failed"`
}

// CollectStats counts cached entries and permanent failures.
func (c *Cache) CollectStats(ctx context.Context) (Stats, error) {
	keys, err := c.store.List(ctx, keyPrefix)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list fingerprint cache: %w", err)
	}

	stats := Stats{Entries: len(keys)}
	if len(keys) == 0 {
		return stats, nil
	}

	raw, err := c.store.GetBatch(ctx, keys)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read fingerprint cache: %w", err)
	}
	for _, data := range raw {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Failed {
			stats.Failed++
		}
	}
	return stats, nil
}

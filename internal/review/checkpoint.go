package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-dedupe/internal/kv"
	"github.com/kozaktomas/photo-dedupe/internal/similarity"
)

const checkpointKeyPrefix = "ckpt:"

// Checkpoint persists a reviewer's position inside a planned batch.
// One live checkpoint per owner.
type Checkpoint struct {
	OwnerID      string   `json:"owner_id"`
	GroupIDs     []string `json:"group_ids"`
	CurrentIndex int      `json:"current_index"`
}

// CheckpointStore keeps checkpoints in the key-value store.
type CheckpointStore struct {
	store kv.Store
}

// NewCheckpointStore creates a checkpoint store over the given store.
func NewCheckpointStore(store kv.Store) *CheckpointStore {
	return &CheckpointStore{store: store}
}

func checkpointKey(ownerID string) string {
	return checkpointKeyPrefix + ownerID
}

// Save stores the owner's checkpoint, replacing any previous one.
func (s *CheckpointStore) Save(ctx context.Context, cp Checkpoint) error {
	if cp.OwnerID == "" {
		return errors.New("checkpoint owner id must not be empty")
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := s.store.PutBatch(ctx, map[string][]byte{checkpointKey(cp.OwnerID): data}); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Get returns the owner's stored checkpoint, or nil when none exists.
// A corrupt record counts as none.
func (s *CheckpointStore) Get(ctx context.Context, ownerID string) (*Checkpoint, error) {
	raw, err := s.store.GetBatch(ctx, []string{checkpointKey(ownerID)})
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	data, ok := raw[checkpointKey(ownerID)]
	if !ok {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// Clear removes the owner's checkpoint.
func (s *CheckpointStore) Clear(ctx context.Context, ownerID string) error {
	if err := s.store.DeleteBatch(ctx, []string{checkpointKey(ownerID)}); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

// Restore rebuilds the batch an owner was reviewing. Group ids permanently
// processed since the save and ids absent from the current group set are
// dropped; the remaining groups are concatenated in their saved order and
// the saved index is clamped to the rebuilt photo list. A checkpoint that
// resolves to zero groups is cleared and reported as absent.
func (s *CheckpointStore) Restore(ctx context.Context, ownerID string, current []similarity.Group, tracker *Tracker) (*Batch, int, error) {
	cp, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	if cp == nil {
		return nil, 0, nil
	}

	processed, err := tracker.PermanentlyProcessed(ctx, cp.GroupIDs)
	if err != nil {
		return nil, 0, err
	}

	byID := make(map[string]similarity.Group, len(current))
	for _, g := range current {
		byID[g.ID] = g
	}

	var groups []similarity.Group
	for _, id := range cp.GroupIDs {
		if processed[id] {
			continue
		}
		g, ok := byID[id]
		if !ok {
			continue
		}
		groups = append(groups, g)
	}

	batch := buildBatch(groups)
	if batch == nil {
		if err := s.Clear(ctx, ownerID); err != nil {
			return nil, 0, err
		}
		return nil, 0, nil
	}

	idx := cp.CurrentIndex
	if idx < 0 {
		idx = 0
	}
	if idx > len(batch.Photos)-1 {
		idx = len(batch.Photos) - 1
	}
	return batch, idx, nil
}

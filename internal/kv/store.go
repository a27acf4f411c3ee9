// Package kv defines the batch-oriented key-value persistence consumed by
// the fingerprint cache, the cooldown tracker and the checkpoint store.
// The engine only relies on the logical schema (string key prefixes, JSON
// values); the backing mechanism is opaque and swappable.
package kv

import "context"

// Store is a batch-oriented key-value store.
//
// PutBatch and DeleteBatch must be atomic: concurrent logical operations
// (a detection run, a user-triggered "mark processed") may touch the same
// store, and partial writes would corrupt cooldown or checkpoint state.
type Store interface {
	// GetBatch returns the values for the given keys.
	// Keys without an entry are absent from the result map.
	GetBatch(ctx context.Context, keys []string) (map[string][]byte, error)

	// PutBatch writes all entries in one atomic step.
	PutBatch(ctx context.Context, entries map[string][]byte) error

	// DeleteBatch removes the given keys in one atomic step.
	// Keys without an entry are ignored.
	DeleteBatch(ctx context.Context, keys []string) error

	// List returns all keys starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Clear removes every key starting with prefix.
	// An empty prefix wipes the entire store.
	Clear(ctx context.Context, prefix string) error

	// Close releases the underlying resources.
	Close() error
}

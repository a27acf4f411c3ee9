package kv

import (
	"context"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is the default embedded Store, backed by BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil // silence badger's own logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// GetBatch reads all keys in a single view transaction.
func (s *BadgerStore) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[key] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	return result, nil
}

// PutBatch writes all entries in a single update transaction.
func (s *BadgerStore) PutBatch(ctx context.Context, entries map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for key, val := range entries {
			if err := txn.Set([]byte(key), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

// DeleteBatch removes all keys in a single update transaction.
func (s *BadgerStore) DeleteBatch(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

// List returns all keys with the given prefix. Values are not fetched.
func (s *BadgerStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Clear drops every key with the given prefix, or the whole store for "".
func (s *BadgerStore) Clear(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if prefix == "" {
		if err := s.db.DropAll(); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
		return nil
	}
	if err := s.db.DropPrefix([]byte(prefix)); err != nil {
		return fmt.Errorf("failed to clear prefix %q: %w", prefix, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

package kv

import (
	"context"
	"reflect"
	"testing"
)

// openFuncs lists the backends exercised by the shared suite.
// Postgres is covered separately by the integration build.
func openFuncs(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"badger": func(t *testing.T) Store {
			s, err := NewBadgerStore(t.TempDir())
			if err != nil {
				t.Fatalf("failed to open badger store: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	for name, open := range openFuncs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			entries := map[string][]byte{
				"fp:1": []byte(`{"hash":42}`),
				"fp:2": []byte(`{"hash":0}`),
				"cd:1": []byte(`{"expires":99}`),
			}
			if err := store.PutBatch(ctx, entries); err != nil {
				t.Fatalf("PutBatch failed: %v", err)
			}

			got, err := store.GetBatch(ctx, []string{"fp:1", "fp:2", "fp:missing"})
			if err != nil {
				t.Fatalf("GetBatch failed: %v", err)
			}
			if len(got) != 2 {
				t.Errorf("GetBatch returned %d entries, want 2", len(got))
			}
			if string(got["fp:1"]) != `{"hash":42}` {
				t.Errorf("fp:1 = %s, want {\"hash\":42}", got["fp:1"])
			}
			if _, ok := got["fp:missing"]; ok {
				t.Error("missing key should be absent from result")
			}
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	for name, open := range openFuncs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			if err := store.PutBatch(ctx, map[string][]byte{"k": []byte("v1")}); err != nil {
				t.Fatalf("PutBatch failed: %v", err)
			}
			if err := store.PutBatch(ctx, map[string][]byte{"k": []byte("v2")}); err != nil {
				t.Fatalf("PutBatch failed: %v", err)
			}

			got, err := store.GetBatch(ctx, []string{"k"})
			if err != nil {
				t.Fatalf("GetBatch failed: %v", err)
			}
			if string(got["k"]) != "v2" {
				t.Errorf("k = %s, want v2", got["k"])
			}
		})
	}
}

func TestStoreDeleteBatch(t *testing.T) {
	for name, open := range openFuncs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			entries := map[string][]byte{
				"a": []byte("1"),
				"b": []byte("2"),
				"c": []byte("3"),
			}
			if err := store.PutBatch(ctx, entries); err != nil {
				t.Fatalf("PutBatch failed: %v", err)
			}

			// Deleting a mix of present and absent keys must succeed.
			if err := store.DeleteBatch(ctx, []string{"a", "c", "nope"}); err != nil {
				t.Fatalf("DeleteBatch failed: %v", err)
			}

			keys, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"b"}) {
				t.Errorf("List = %v, want [b]", keys)
			}
		})
	}
}

func TestStoreListPrefix(t *testing.T) {
	for name, open := range openFuncs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			entries := map[string][]byte{
				"fp:1":     []byte("x"),
				"fp:2":     []byte("x"),
				"cd:img:1": []byte("x"),
				"ckpt:a":   []byte("x"),
			}
			if err := store.PutBatch(ctx, entries); err != nil {
				t.Fatalf("PutBatch failed: %v", err)
			}

			keys, err := store.List(ctx, "fp:")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"fp:1", "fp:2"}) {
				t.Errorf("List(fp:) = %v, want [fp:1 fp:2]", keys)
			}
		})
	}
}

func TestStoreClearPrefix(t *testing.T) {
	for name, open := range openFuncs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			entries := map[string][]byte{
				"fp:1": []byte("x"),
				"fp:2": []byte("x"),
				"cd:1": []byte("x"),
			}
			if err := store.PutBatch(ctx, entries); err != nil {
				t.Fatalf("PutBatch failed: %v", err)
			}

			if err := store.Clear(ctx, "fp:"); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}

			keys, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"cd:1"}) {
				t.Errorf("after Clear(fp:) List = %v, want [cd:1]", keys)
			}

			if err := store.Clear(ctx, ""); err != nil {
				t.Fatalf("Clear all failed: %v", err)
			}
			keys, err = store.List(ctx, "")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(keys) != 0 {
				t.Errorf("after Clear(\"\") List = %v, want empty", keys)
			}
		})
	}
}

func TestMemoryStoreErrorInjection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.GetError = context.DeadlineExceeded

	if _, err := store.GetBatch(ctx, []string{"k"}); err == nil {
		t.Error("expected injected error from GetBatch")
	}
}

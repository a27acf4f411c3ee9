package similarity

import (
	"testing"
	"time"
)

func TestResultCache(t *testing.T) {
	current := time.Unix(1000, 0)
	c := NewResultCache(5 * time.Minute)
	c.now = func() time.Time { return current }

	if c.Get() != nil {
		t.Error("empty cache returned a result")
	}

	res := &Result{}
	c.Set(res)
	if c.Get() != res {
		t.Error("cache did not return the stored result")
	}

	current = current.Add(5 * time.Minute)
	if c.Get() != res {
		t.Error("result expired before the window elapsed")
	}

	current = current.Add(time.Second)
	if c.Get() != nil {
		t.Error("result survived past the validity window")
	}

	// Storing again restarts the window.
	c.Set(res)
	if c.Get() != res {
		t.Error("re-stored result not returned")
	}
}

func TestResultCacheInvalidate(t *testing.T) {
	c := NewResultCache(0)
	c.Set(&Result{})
	c.Invalidate()
	if c.Get() != nil {
		t.Error("invalidated cache still returned a result")
	}
}

package similarity

import (
	"sync"
	"time"
)

const defaultResultTTL = 5 * time.Minute

// ResultCache keeps the most recent detection result for a short window so
// repeated reads do not re-run the pipeline. It is not coherent with the
// underlying photo set on its own; callers must Invalidate it whenever
// photos are added or removed.
type ResultCache struct {
	mu       sync.Mutex
	result   *Result
	storedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewResultCache creates a cache with the given validity window.
// A non-positive ttl selects the default of five minutes.
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	return &ResultCache{ttl: ttl, now: time.Now}
}

// Get returns the cached result, or nil when empty or expired.
func (c *ResultCache) Get() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil || c.now().Sub(c.storedAt) > c.ttl {
		return nil
	}
	return c.result
}

// Set stores a result and restarts the validity window.
func (c *ResultCache) Set(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = r
	c.storedAt = c.now()
}

// Invalidate drops the cached result.
func (c *ResultCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
}

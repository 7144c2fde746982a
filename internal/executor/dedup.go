package executor

import (
	"sync"
	"time"
)

// Dedup rejects repeats of the same order key within a time-to-live
// window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> last seen time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a key seen within ttl as a duplicate.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL window. A key
// that is new (or expired) is recorded and false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[key]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops key so it can be submitted again immediately.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}

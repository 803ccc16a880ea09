package dedup

import (
	"sync"
	"time"
)

// DefaultWindow is how long a fingerprint stays live after its first
// sighting. Duplicate sightings do not extend it.
const DefaultWindow = 90 * time.Second

type windowEntry struct {
	parentID  int64
	eventID   string
	expiresAt time.Time
}

// window tracks live fingerprints. Expired entries are dropped lazily
// on lookup and in bulk by Sweep. The window is process-local and
// starts empty on restart.
type window struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[uint64]windowEntry
}

func newWindow(ttl time.Duration) *window {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	return &window{
		ttl:     ttl,
		entries: make(map[uint64]windowEntry),
	}
}

// lookup returns the live entry for a fingerprint, dropping it first if
// it has expired.
func (w *window) lookup(fp uint64, now time.Time) (windowEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[fp]
	if !ok {
		return windowEntry{}, false
	}
	if now.After(entry.expiresAt) {
		delete(w.entries, fp)
		return windowEntry{}, false
	}
	return entry, true
}

// record registers a fingerprint's first sighting. An existing live
// entry wins; the earliest record stays the parent and its expiry is
// not extended.
func (w *window) record(fp uint64, parentID int64, eventID string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry, ok := w.entries[fp]; ok && now.Before(entry.expiresAt) {
		return
	}
	w.entries[fp] = windowEntry{
		parentID:  parentID,
		eventID:   eventID,
		expiresAt: now.Add(w.ttl),
	}
}

// sweep drops all expired entries and returns how many were removed.
func (w *window) sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for fp, entry := range w.entries {
		if now.After(entry.expiresAt) {
			delete(w.entries, fp)
			removed++
		}
	}
	return removed
}

func (w *window) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

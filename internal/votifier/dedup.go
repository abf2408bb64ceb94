package votifier

import (
	"strings"
	"sync"
	"time"
)

// DedupWindow is how long a (user, service) pair is suppressed after a
// processed vote. Voting sites almost never legitimately double-submit
// within the hour.
const DedupWindow = time.Hour

// Dedup is a sliding-window set of recently processed votes. Keys are
// case-insensitive. Memory only; a restart forgets history.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewDedup creates an empty dedup set.
func NewDedup() *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func dedupKey(user, service string) string {
	return strings.ToLower(user) + ":" + strings.ToLower(service)
}

// IsDuplicate reports whether the pair was processed within the window.
// Expired entries are pruned on every lookup.
func (d *Dedup) IsDuplicate(user, service string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-DedupWindow)
	for k, ts := range d.seen {
		if !ts.After(cutoff) {
			delete(d.seen, k)
		}
	}

	_, ok := d.seen[dedupKey(user, service)]
	return ok
}

// MarkProcessed records the pair at the current time.
func (d *Dedup) MarkProcessed(user, service string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[dedupKey(user, service)] = d.now()
}

package plugins

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rsclarke/ipsguard/internal/events"
)

// Tracker defaults.
const (
	DefaultTrackerSize = 65536
	DefaultInterval    = time.Hour
)

// Tracker counts failures per app and address within a sliding interval and
// remembers which addresses have been banned. Both sets are bounded; the
// least recently seen entries are dropped first.
type Tracker struct {
	mu     sync.Mutex
	counts *expirable.LRU[string, int]
	banned *expirable.LRU[string, struct{}]
}

// NewTracker returns a Tracker holding up to size addresses. A failure is
// forgotten interval after the last one seen for the same key; a zero
// banTTL keeps bans until evicted.
func NewTracker(size int, interval, banTTL time.Duration) *Tracker {
	if size <= 0 {
		size = DefaultTrackerSize
	}
	return &Tracker{
		counts: expirable.NewLRU[string, int](size, nil, interval),
		banned: expirable.NewLRU[string, struct{}](size, nil, banTTL),
	}
}

func trackerKey(app events.App, address string) string {
	return string(app) + "|" + address
}

// Record counts one failure and returns the running total.
func (t *Tracker) Record(app events.App, address string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := trackerKey(app, address)
	n, _ := t.counts.Get(key)
	n++
	t.counts.Add(key, n)
	return n
}

// Count returns the running total without recording a failure.
func (t *Tracker) Count(app events.App, address string) int {
	n, _ := t.counts.Peek(trackerKey(app, address))
	return n
}

// Banned reports whether address was marked banned.
func (t *Tracker) Banned(address string) bool {
	return t.banned.Contains(address)
}

// MarkBanned records a ban and clears the counters of address for app.
func (t *Tracker) MarkBanned(app events.App, address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.banned.Add(address, struct{}{})
	t.counts.Remove(trackerKey(app, address))
}

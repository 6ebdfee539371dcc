package netsnap

import (
	"sync"
	"time"
)

// Cached returns a Provider that reuses a snapshot taken by p for ttl.
func Cached(p Provider, ttl time.Duration) Provider {
	return &cached{p: p, ttl: ttl, now: time.Now}
}

type cached struct {
	mu    sync.Mutex
	p     Provider
	ttl   time.Duration
	snap  *Snapshot
	taken time.Time
	now   func() time.Time
}

func (c *cached) Snapshot() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.snap != nil && now.Sub(c.taken) < c.ttl {
		return c.snap, nil
	}
	s, err := c.p.Snapshot()
	if err != nil {
		return nil, err
	}
	c.snap, c.taken = s, now
	return s, nil
}

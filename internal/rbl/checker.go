package rbl

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/cache"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/metrics"
	"github.com/rsclarke/ipsguard/internal/resolver"
)

// Result is the outcome of one zone for one address.
type Result struct {
	Zone         Zone
	Hit          string
	Explanations []string
	// Cached is set when the result was read from the cache file.
	Cached bool
}

// Listed reports whether the zone lists the address.
func (r Result) Listed() bool {
	return r.Hit != "" && r.Hit != Timeout
}

// Checker runs report passes over a zone list.
type Checker struct {
	Resolver resolver.Resolver
	Zones    *ZoneList
	// Cache is optional.
	Cache   *cache.RBLCache
	Timeout time.Duration
	// Parallel bounds the concurrent zone queries; 0 means one per zone.
	Parallel int
	Logger   *zap.Logger
}

func (c *Checker) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Report returns the result of every configured zone for a, in zone order.
// Unless force is set, a cached pass for a is returned instead of querying.
// Fresh results are written to the cache; a failed write is logged only.
func (c *Checker) Report(ctx context.Context, a addr.Address, force bool) ([]Result, error) {
	key := a.String()
	if !c.Zones.Checked(key) {
		return nil, nil
	}

	if c.Cache != nil && !force {
		entries, ok, err := c.Cache.Read(key)
		if err != nil {
			c.logger().Warn("rbl cache read failed", logging.Addr(key), zap.Error(err))
		} else if ok {
			out := make([]Result, 0, len(entries))
			for _, e := range entries {
				out = append(out, Result{
					Zone:         c.zone(e.Zone),
					Hit:          e.Hit,
					Explanations: e.Explanations,
					Cached:       true,
				})
			}
			return out, nil
		}
	}

	zones := c.Zones.Zones
	results := make([]Result, len(zones))

	var g errgroup.Group
	if c.Parallel > 0 {
		g.SetLimit(c.Parallel)
	}
	for i, z := range zones {
		i, z := i, z
		g.Go(func() error {
			start := time.Now()
			hit, expl, err := Lookup(ctx, c.Resolver, a.Addr, z.Name, c.Timeout)
			metrics.RBLQueryDuration.WithLabelValues(z.Name).Observe(time.Since(start).Seconds())

			outcome := "clean"
			switch {
			case err != nil:
				outcome = "error"
				c.logger().Warn("rbl query failed", logging.Addr(key), logging.Zone(z.Name), zap.Error(err))
			case hit == Timeout:
				outcome = "timeout"
			case hit != "":
				outcome = "listed"
			}
			metrics.RBLQueriesTotal.WithLabelValues(z.Name, outcome).Inc()

			results[i] = Result{Zone: z, Hit: hit, Explanations: expl}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	if c.Cache != nil {
		entries := make([]cache.RBLEntry, 0, len(results))
		for _, r := range results {
			entries = append(entries, cache.RBLEntry{Zone: r.Zone.Name, Hit: r.Hit, Explanations: r.Explanations})
		}
		write := c.Cache.Append
		if force {
			write = c.Cache.Replace
		}
		if err := write(key, entries); err != nil {
			c.logger().Warn("rbl cache write failed", logging.Addr(key), zap.Error(err))
		}
	}
	return results, nil
}

func (c *Checker) zone(name string) Zone {
	for _, z := range c.Zones.Zones {
		if z.Name == name {
			return z
		}
	}
	return Zone{Name: name}
}

// FirstHit summarises a report: the first listed hit in zone order, else
// Timeout if any zone timed out, else empty.
func FirstHit(results []Result) (string, []string) {
	timedOut := false
	for _, r := range results {
		if r.Listed() {
			return r.Hit, r.Explanations
		}
		if r.Hit == Timeout {
			timedOut = true
		}
	}
	if timedOut {
		return Timeout, nil
	}
	return "", nil
}

// Package enrich attaches location, network-operator, host name and
// blocklist data to an address. Each source fails independently: a broken
// geo database leaves the RBL data intact and the other way round.
package enrich

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/cache"
	"github.com/rsclarke/ipsguard/internal/geo"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/metrics"
	"github.com/rsclarke/ipsguard/internal/rbl"
	"github.com/rsclarke/ipsguard/internal/resolver"
)

// Mode selects how much data to gather.
type Mode int

// Lookup modes, each a superset of the previous one.
const (
	// ModeCountry resolves the country only.
	ModeCountry Mode = iota
	// ModeFull adds region, city, ASN and host name.
	ModeFull
	// ModeRBL adds blocklist status.
	ModeRBL
)

// ParseMode parses "country", "full" or "rbl".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "country":
		return ModeCountry, nil
	case "full", "":
		return ModeFull, nil
	case "rbl":
		return ModeRBL, nil
	}
	return 0, errors.New("unknown lookup mode " + s)
}

// Options adjusts one lookup.
type Options struct {
	// Force bypasses the RBL cache and rewrites it.
	Force bool
}

// Record is the reputation of one address.
type Record struct {
	Address     string
	CountryCode string
	CountryName string
	Region      string
	City        string
	ASN         uint32
	ASNOrg      string
	Hostname    string
	// RBLHit is empty when no zone lists the address, rbl.Timeout when a
	// zone did not answer and none listed it, and the first listing
	// otherwise.
	RBLHit          string
	RBLExplanations []string
	RBLResults      []rbl.Result
}

// Listed reports whether a blocklist lists the address.
func (r Record) Listed() bool {
	return r.RBLHit != "" && r.RBLHit != rbl.Timeout
}

// GeoSource resolves locations and operators.
type GeoSource interface {
	City(ip netip.Addr) (geo.City, bool, error)
	ASN(ip netip.Addr) (geo.ASN, bool, error)
}

// Enricher gathers reputation data. Every source is optional.
type Enricher struct {
	Geo      GeoSource
	Hosts    *cache.HostCache
	Resolver resolver.Resolver
	RBL      *rbl.Checker
	// PTRTimeout bounds the reverse lookup of the host name.
	PTRTimeout time.Duration
	Logger     *zap.Logger
}

func (e *Enricher) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Enrich returns the reputation of a. Addresses that are not public are
// returned without lookups.
func (e *Enricher) Enrich(ctx context.Context, a addr.Address, mode Mode, opts Options) Record {
	rec := Record{Address: a.String()}
	if a.IsZero() || a.Class != addr.Public {
		return rec
	}

	e.geo(&rec, a.Addr, mode)
	if mode >= ModeFull {
		e.asn(&rec, a.Addr)
		rec.Hostname = e.hostname(ctx, a)
	}
	if mode >= ModeRBL && e.RBL != nil {
		results, err := e.RBL.Report(ctx, a, opts.Force)
		if err != nil {
			e.logger().Warn("rbl report incomplete", logging.Addr(rec.Address), zap.Error(err))
		}
		rec.RBLResults = results
		rec.RBLHit, rec.RBLExplanations = rbl.FirstHit(results)
	}
	return rec
}

func outcome(ok bool, err error) string {
	switch {
	case err != nil:
		return "unavailable"
	case ok:
		return "hit"
	}
	return "miss"
}

func (e *Enricher) geo(rec *Record, ip netip.Addr, mode Mode) {
	if e.Geo == nil {
		return
	}
	c, ok, err := e.Geo.City(ip)
	metrics.GeoLookupsTotal.WithLabelValues("city", outcome(ok, err)).Inc()
	if err != nil {
		e.logger().Warn("geo lookup failed", logging.Addr(rec.Address), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	rec.CountryCode, rec.CountryName = c.CountryCode, c.CountryName
	if mode >= ModeFull {
		rec.Region, rec.City = c.Region, c.City
	}
}

func (e *Enricher) asn(rec *Record, ip netip.Addr) {
	if e.Geo == nil {
		return
	}
	a, ok, err := e.Geo.ASN(ip)
	metrics.GeoLookupsTotal.WithLabelValues("asn", outcome(ok, err)).Inc()
	if err != nil {
		e.logger().Warn("asn lookup failed", logging.Addr(rec.Address), zap.Error(err))
		return
	}
	if ok {
		rec.ASN, rec.ASNOrg = a.Number, a.Org
	}
}

// hostname returns the PTR name of a through the host cache. Failed
// lookups are cached as an empty name; timeouts are not cached.
func (e *Enricher) hostname(ctx context.Context, a addr.Address) string {
	key := a.Canonical
	if e.Hosts != nil {
		host, ok, err := e.Hosts.Get(key)
		if err != nil {
			e.logger().Warn("host cache read failed", logging.Addr(key), zap.Error(err))
		} else if ok {
			return host
		}
	}
	if e.Resolver == nil {
		return ""
	}

	timeout := e.PTRTimeout
	if timeout <= 0 {
		timeout = rbl.DefaultTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var host string
	names, err := e.Resolver.LookupPTR(pctx, a.Addr)
	switch {
	case err == nil && len(names) > 0:
		host = names[0]
	case err == nil, errors.Is(err, resolver.ErrNotFound):
	default:
		e.logger().Debug("reverse lookup failed", logging.Addr(key), zap.Error(err))
		return ""
	}

	if e.Hosts != nil {
		if err := e.Hosts.Put(key, host); err != nil {
			e.logger().Warn("host cache write failed", logging.Addr(key), zap.Error(err))
		}
	}
	return host
}

// Package resolver issues the outbound DNS queries used for reputation
// lookups. Every query is bound to its context; a cancelled or expired
// context aborts the query and releases whatever it holds.
package resolver

import (
	"context"
	"errors"
	"net/netip"
)

// ErrNotFound is returned when the name does not exist or has no record
// of the requested type.
var ErrNotFound = errors.New("record not found")

// Resolver answers A, TXT and PTR queries.
type Resolver interface {
	LookupA(ctx context.Context, name string) ([]netip.Addr, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupPTR(ctx context.Context, ip netip.Addr) ([]string, error)
}

// Mode names a resolver backend.
type Mode string

// Resolver backends.
const (
	ModeDNS  Mode = "dns"
	ModeExec Mode = "exec"
)

// Config selects and configures a backend.
type Config struct {
	Mode Mode
	// Server is a "host:port" nameserver. Empty means the first server
	// listed in /etc/resolv.conf.
	Server string
	// Binary is the resolver executable used by ModeExec.
	Binary string
}

// New returns the backend selected by cfg.
func New(cfg Config) (Resolver, error) {
	switch cfg.Mode {
	case ModeExec:
		return &Exec{Binary: cfg.Binary, Server: cfg.Server}, nil
	case ModeDNS, "":
		return NewDNS(cfg.Server)
	default:
		return nil, errors.New("unknown resolver mode " + string(cfg.Mode))
	}
}

// Package rbl checks addresses against DNS blocklists.
package rbl

import (
	"context"
	"errors"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/rsclarke/ipsguard/internal/resolver"
)

// Timeout is the hit reported when a zone did not answer within its
// deadline. It is distinct from the empty hit of a clean answer.
const Timeout = "TIMEOUT"

// DefaultTimeout bounds each zone query.
const DefaultTimeout = 4 * time.Second

// ReverseName returns the query name for ip under zone: reversed octets for
// IPv4, reversed nibbles for IPv6.
func ReverseName(ip netip.Addr, zone string) string {
	ip = ip.Unmap()
	var b strings.Builder
	if ip.Is4() {
		o := ip.As4()
		for i := 3; i >= 0; i-- {
			b.WriteString(strconv.Itoa(int(o[i])))
			b.WriteByte('.')
		}
	} else {
		const hex = "0123456789abcdef"
		o := ip.As16()
		for i := 15; i >= 0; i-- {
			b.WriteByte(hex[o[i]&0x0f])
			b.WriteByte('.')
			b.WriteByte(hex[o[i]>>4])
			b.WriteByte('.')
		}
	}
	b.WriteString(strings.TrimSuffix(zone, "."))
	return b.String()
}

// Lookup queries zone for ip. A listed address yields the first returned
// A record as hit plus any TXT explanations; a clean one yields an empty
// hit. If the A query misses its deadline the hit is Timeout. The TXT query
// runs under its own deadline and its failure leaves the hit intact.
//
// The error reports resolver failures other than a missing record or a
// timeout; hit is empty in that case.
func Lookup(ctx context.Context, r resolver.Resolver, ip netip.Addr, zone string, timeout time.Duration) (string, []string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	name := ReverseName(ip, zone)

	actx, cancel := context.WithTimeout(ctx, timeout)
	ips, err := r.LookupA(actx, name)
	cancel()
	switch {
	case err == nil && len(ips) > 0:
	case err == nil, errors.Is(err, resolver.ErrNotFound):
		return "", nil, nil
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout, nil, nil
	default:
		return "", nil, err
	}
	hit := ips[0].String()

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	txt, err := r.LookupTXT(tctx, name)
	if err != nil {
		return hit, nil, nil
	}
	return hit, txt, nil
}

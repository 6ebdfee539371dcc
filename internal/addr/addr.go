// Package addr validates, normalizes and classifies IP addresses.
package addr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// Family is the IP address family.
type Family int

// Address families.
const (
	V4 Family = 4
	V6 Family = 6
)

// Class is the routing classification of an address.
type Class string

// Address classes.
const (
	Invalid  Class = "INVALID"
	Loopback Class = "LOOPBACK"
	Private  Class = "PRIVATE"
	Public   Class = "PUBLIC"
)

// Validation errors.
var (
	ErrInvalid   = errors.New("invalid address")
	ErrLoopback  = errors.New("loopback address")
	ErrNotPublic = errors.New("address is not public")
)

// Address is a validated IP address with an optional CIDR prefix.
type Address struct {
	Family Family
	Addr   netip.Addr
	// Prefix is the CIDR prefix length, 0 when absent.
	Prefix int
	Class  Class
	// Canonical is the address without prefix: the literal form for IPv4,
	// the shortened form for IPv6.
	Canonical string
}

// String returns the canonical form including any prefix.
func (a Address) String() string {
	if a.Prefix > 0 {
		return a.Canonical + "/" + strconv.Itoa(a.Prefix)
	}
	return a.Canonical
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return !a.Addr.IsValid()
}

// IsCIDR reports whether a carries a prefix length.
func (a Address) IsCIDR() bool {
	return a.Prefix > 0
}

var (
	ipv4Re = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1[0-9][0-9]|[1-9]?[0-9])$`)
	// Shape check only; netip performs the strict parse.
	ipv6Re = regexp.MustCompile(`^[0-9A-Fa-f:]*:[0-9A-Fa-f:.]*(?:%[0-9A-Za-z_.\-]+)?$`)

	mappedRe = regexp.MustCompile(`(?i)^::ffff:((?:\d{1,3}\.){3}\d{1,3})$`)
)

// Normalize strips an IPv4-mapped IPv6 prefix such as "::ffff:" from an
// address that is otherwise a dotted quad. Other input is returned trimmed.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if m := mappedRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// Validate checks input against the IPv4 and IPv6 grammars, an optional
// "/prefix" suffix included. IPv6 input is returned in shortened canonical
// form. With requirePublic set, anything not classified Public is rejected.
func Validate(input string, requirePublic bool) (Address, error) {
	ip := strings.TrimSpace(input)
	prefix := 0

	if i := strings.IndexByte(ip, '/'); i >= 0 {
		p, err := strconv.Atoi(ip[i+1:])
		if err != nil || strings.ContainsAny(ip[i+1:], "+-") {
			return Address{}, fmt.Errorf("%w: prefix %q", ErrInvalid, ip[i+1:])
		}
		prefix = p
		ip = ip[:i]
	}

	var a Address
	switch {
	case ipv4Re.MatchString(ip):
		parsed, err := netip.ParseAddr(ip)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalid, input)
		}
		if strings.Contains(input, "/") && (prefix < 1 || prefix > 32) {
			return Address{}, fmt.Errorf("%w: prefix %d out of range", ErrInvalid, prefix)
		}
		if ip == "127.0.0.1" {
			return Address{}, ErrLoopback
		}
		a = Address{Family: V4, Addr: parsed, Prefix: prefix, Canonical: ip}

	case ipv6Re.MatchString(ip):
		parsed, err := netip.ParseAddr(ip)
		if err != nil || !parsed.Is6() {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalid, input)
		}
		if strings.Contains(input, "/") && (prefix < 1 || prefix > 128) {
			return Address{}, fmt.Errorf("%w: prefix %d out of range", ErrInvalid, prefix)
		}
		if collapsed(parsed) == "1" {
			return Address{}, ErrLoopback
		}
		a = Address{Family: V6, Addr: parsed, Prefix: prefix, Canonical: parsed.String()}

	default:
		return Address{}, fmt.Errorf("%w: %q", ErrInvalid, input)
	}

	a.Class = Classify(a.Addr)
	if requirePublic && a.Class != Public {
		if a.Class == Loopback {
			return Address{}, ErrLoopback
		}
		return Address{}, fmt.Errorf("%w: %s is %s", ErrNotPublic, a.Canonical, a.Class)
	}
	return a, nil
}

// Valid reports whether s is a valid address.
func Valid(s string) bool {
	_, err := Validate(s, false)
	return err == nil
}

// collapsed strips separators and leading zeros from the hex form of an
// IPv6 address, so every spelling of ::1 collapses to "1".
func collapsed(a netip.Addr) string {
	b := a.WithZone("").As16()
	s := strings.TrimLeft(hex.EncodeToString(b[:]), "0")
	if s == "" {
		return "0"
	}
	return s
}

var privateV4 = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
)

var privateV6 = mustPrefixes(
	"::/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
	"100::/64",
)

func mustPrefixes(ss ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(ss))
	for _, s := range ss {
		out = append(out, netip.MustParsePrefix(s))
	}
	return out
}

// Classify returns the routing class of a.
func Classify(a netip.Addr) Class {
	if !a.IsValid() {
		return Invalid
	}
	a = a.WithZone("")
	if a.Is4In6() {
		a = a.Unmap()
	}
	if a.IsLoopback() {
		return Loopback
	}
	nets := privateV6
	if a.Is4() {
		nets = privateV4
	}
	for _, p := range nets {
		if p.Contains(a) {
			return Private
		}
	}
	return Public
}

package rbl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rsclarke/ipsguard/internal/addr"
)

// Zone is a DNS blocklist.
type Zone struct {
	Name string
	// Info is a page explaining listings, if known.
	Info string
}

// DefaultZones is the zone list before overrides.
var DefaultZones = []Zone{
	{Name: "zen.spamhaus.org", Info: "https://check.spamhaus.org/"},
	{Name: "bl.spamcop.net", Info: "https://www.spamcop.net/bl.shtml"},
	{Name: "b.barracudacentral.org", Info: "https://www.barracudacentral.org/lookups"},
	{Name: "dnsbl.dronebl.org", Info: "https://dronebl.org/lookup"},
	{Name: "bl.mailspike.net", Info: "https://mailspike.org/iplookup.html"},
	{Name: "psbl.surriel.com", Info: "https://psbl.org/"},
}

// ZoneList is the effective zone list after overrides, plus the addresses
// explicitly added to or removed from checking.
type ZoneList struct {
	Zones []Zone
	// Include holds addresses to check in addition to the local ones.
	Include []string
	// Exclude holds addresses never to check.
	Exclude map[string]bool
}

// NewZoneList returns a list holding zones.
func NewZoneList(zones []Zone) *ZoneList {
	return &ZoneList{
		Zones:   append([]Zone(nil), zones...),
		Exclude: make(map[string]bool),
	}
}

// Checked reports whether lookups are allowed for a.
func (l *ZoneList) Checked(a string) bool {
	return !l.Exclude[a]
}

// Targets returns local followed by the included addresses, minus excluded
// ones and duplicates.
func (l *ZoneList) Targets(local []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range append(append([]string(nil), local...), l.Include...) {
		if seen[a] || l.Exclude[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// ApplyOverrides applies override lines in order:
//
//	enable:zone[:info-url]
//	disable:zone
//	enableip:address
//	disableip:address
//
// Blank lines and lines starting with '#' are skipped. Malformed lines are
// returned as errors after the valid ones have been applied.
func (l *ZoneList) ApplyOverrides(r io.Reader) error {
	var errs []string
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		verb, arg, ok := strings.Cut(line, ":")
		arg = strings.TrimSpace(arg)
		if !ok || arg == "" {
			errs = append(errs, fmt.Sprintf("line %d: %q", n, line))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(verb)) {
		case "enable":
			name, info, _ := strings.Cut(arg, ":")
			l.enable(Zone{Name: strings.ToLower(name), Info: info})
		case "disable":
			l.disable(strings.ToLower(arg))
		case "enableip":
			a, err := addr.Validate(arg, false)
			if err != nil {
				errs = append(errs, fmt.Sprintf("line %d: %v", n, err))
				continue
			}
			delete(l.Exclude, a.String())
			l.Include = append(l.Include, a.String())
		case "disableip":
			a, err := addr.Validate(arg, false)
			if err != nil {
				errs = append(errs, fmt.Sprintf("line %d: %v", n, err))
				continue
			}
			l.Exclude[a.String()] = true
		default:
			errs = append(errs, fmt.Sprintf("line %d: unknown directive %q", n, verb))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid rbl overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (l *ZoneList) enable(z Zone) {
	for i, cur := range l.Zones {
		if cur.Name == z.Name {
			if z.Info != "" {
				l.Zones[i].Info = z.Info
			}
			return
		}
	}
	l.Zones = append(l.Zones, z)
}

func (l *ZoneList) disable(name string) {
	out := l.Zones[:0]
	for _, z := range l.Zones {
		if z.Name != name {
			out = append(out, z)
		}
	}
	l.Zones = out
}

// LoadZones builds the zone list from zones, or DefaultZones when zones is
// empty, and applies the override file at path if it exists.
func LoadZones(zones []Zone, path string) (*ZoneList, error) {
	if len(zones) == 0 {
		zones = DefaultZones
	}
	l := NewZoneList(zones)
	if path == "" {
		return l, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return l, err
	}
	defer func() { _ = f.Close() }()
	return l, l.ApplyOverrides(f)
}

// ParseZone parses "zone[:info-url]".
func ParseZone(s string) Zone {
	name, info, _ := strings.Cut(strings.TrimSpace(s), ":")
	return Zone{Name: strings.ToLower(name), Info: info}
}

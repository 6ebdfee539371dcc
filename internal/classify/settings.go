package classify

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/events"
)

// Settings is the configuration the rule predicates are evaluated against.
type Settings struct {
	// Triggers holds the failure count that bans an address per app.
	// An app whose trigger is zero is not checked.
	Triggers map[events.App]int
	// TrackLogins enables successful POP3/IMAP login extraction.
	TrackLogins bool
	TrackSU     bool
	TrackSudo   bool
	// TCPIn and UDPIn are the comma separated inbound port lists,
	// ranges written as "low:high".
	TCPIn string
	UDPIn string
	// PortScanIgnoreOpen suppresses port-scan hits on open inbound ports.
	PortScanIgnoreOpen bool

	tcpOpen map[int]bool
	udpOpen map[int]bool
}

// Enabled reports whether checks for app are switched on.
func (s *Settings) Enabled(app events.App) bool {
	return s.Triggers[app] > 0
}

// Trigger returns the failure count at which app bans an address.
func (s *Settings) Trigger(app events.App) int {
	return s.Triggers[app]
}

// compile parses the port lists. A list that fails to parse only disables
// open-port suppression for its protocol.
func (s *Settings) compile(logger *zap.Logger) {
	var err error
	if s.tcpOpen, err = ParsePorts(s.TCPIn); err != nil {
		logger.Warn("ignoring tcp port list", zap.Error(err))
		s.tcpOpen = nil
	}
	if s.udpOpen, err = ParsePorts(s.UDPIn); err != nil {
		logger.Warn("ignoring udp port list", zap.Error(err))
		s.udpOpen = nil
	}
}

func (s *Settings) openPort(proto string, port int) bool {
	switch proto {
	case "TCP":
		return s.tcpOpen[port]
	case "UDP":
		return s.udpOpen[port]
	}
	return false
}

// ParsePorts parses a list such as "22,80,443,30000:35000".
func ParsePorts(list string) (map[int]bool, error) {
	ports := make(map[int]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(item, ":")
		from, err := parsePort(lo)
		if err != nil {
			return nil, err
		}
		to := from
		if isRange {
			if to, err = parsePort(hi); err != nil {
				return nil, err
			}
			if to < from {
				return nil, fmt.Errorf("invalid port range %q", item)
			}
		}
		for p := from; p <= to; p++ {
			ports[p] = true
		}
	}
	return ports, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 0 || p > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return p, nil
}

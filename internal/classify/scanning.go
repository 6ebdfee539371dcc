package classify

import (
	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/netsnap"
)

// Scanning classifies log lines like Classifier and additionally reports
// blocked firewall packets as port-scan events.
type Scanning struct {
	*Classifier
	Snapshots netsnap.Provider
}

// Classify returns the event for line, trying the port-scan extractor when
// no rule matches.
func (s Scanning) Classify(line, source string, logs LogSets) (events.SecurityEvent, bool) {
	if ev, ok := s.Classifier.Classify(line, source, logs); ok {
		return ev, true
	}
	if s.Snapshots == nil || !logs.Has(LogIPTables, source) {
		return events.SecurityEvent{}, false
	}
	snap, err := s.Snapshots.Snapshot()
	if err != nil {
		s.logger.Warn("interface snapshot failed", zap.Error(err))
		return events.SecurityEvent{}, false
	}
	hit, ok := s.PortScan(line, source, logs, snap)
	if !ok {
		return events.SecurityEvent{}, false
	}
	ev := events.SecurityEvent{
		Address: hit.Address,
		App:     events.AppPortScan,
		Reason:  "Port scan (" + hit.Target() + ")",
		Rule:    "portscan",
	}
	return s.stamp(ev, Input{Line: line, Source: source, Logs: logs}), true
}

// Package audit implements the core plugin that writes one audit line per
// ban.
package audit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/plugins"
)

// Auditor receives audit lines.
type Auditor interface {
	Log(msg string)
}

// Plugin writes ban decisions to the audit trail.
type Plugin struct {
	audit  Auditor
	logger *zap.Logger
}

// New creates the plugin writing to a.
func New(a Auditor) *Plugin {
	return &Plugin{audit: a, logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "audit" }

// IsCore marks the plugin as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("audit")
	return nil
}

// OnBan writes the ban line.
func (p *Plugin) OnBan(_ context.Context, b *events.Ban) error {
	p.audit.Log(Line(b))
	return nil
}

// Line formats the audit line of b.
func Line(b *events.Ban) string {
	where := location(b.Reputation)
	switch b.Reason {
	case events.BanReputation:
		return fmt.Sprintf("*LF* (%s) %s%s listed in %s - *Blocked*", b.App, b.Address, where, b.RBLHit)
	default:
		reason := string(b.App)
		if b.Event != nil && b.Event.Reason != "" {
			reason = b.Event.Reason
		}
		return fmt.Sprintf("*LF* (%s) %s from %s%s: %d failures - *Blocked*", b.App, reason, b.Address, where, b.Count)
	}
}

// location renders " (CC/Country/host)" from the populated fields of r.
func location(r *events.Reputation) string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, v := range []string{r.CountryCode, r.CountryName, r.Hostname} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "/") + ")"
}

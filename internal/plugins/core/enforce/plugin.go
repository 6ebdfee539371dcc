// Package enforce implements the core plugin that terminates the live
// sessions of a banned address.
package enforce

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/plugins"
)

// Target names the daemon whose sessions are killed for an app and the
// local ports it serves.
type Target struct {
	// Daemon must occur in the executable path of a killed process. The
	// app name is used when empty.
	Daemon string
	Ports  []int
}

// DefaultTargets are used when no targets are configured.
var DefaultTargets = map[events.App]Target{
	events.AppSSHD: {Daemon: "sshd", Ports: []int{22}},
}

// Targets pairs each port set with the daemon named for its app.
func Targets(ports map[events.App][]int, daemons map[events.App]string) map[events.App]Target {
	out := make(map[events.App]Target, len(ports))
	for app, p := range ports {
		out[app] = Target{Daemon: daemons[app], Ports: p}
	}
	return out
}

// Terminator kills the sessions of an address held by daemon on the given
// local ports.
type Terminator interface {
	TerminateSessions(a addr.Address, daemon string, ports []int) []events.Termination
}

// Plugin calls the Terminator for every ban whose app has a target.
type Plugin struct {
	term    Terminator
	targets map[events.App]Target
	store   plugins.Store
	logger  *zap.Logger
}

// New creates the plugin. A nil targets map uses DefaultTargets.
func New(term Terminator, targets map[events.App]Target) *Plugin {
	if targets == nil {
		targets = DefaultTargets
	}
	return &Plugin{term: term, targets: targets, logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "enforce" }

// IsCore marks the plugin as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("enforce")
	p.store = ctx.Store
	return nil
}

// Config exposes the daemon and port set per app.
func (p *Plugin) Config() map[string]any {
	apps := make([]string, 0, len(p.targets))
	for app := range p.targets {
		apps = append(apps, string(app))
	}
	sort.Strings(apps)
	cfg := make(map[string]any, len(apps))
	for _, app := range apps {
		t := p.targets[events.App(app)]
		cfg[app] = map[string]any{"daemon": daemon(events.App(app), t), "ports": t.Ports}
	}
	return cfg
}

func daemon(app events.App, t Target) string {
	if t.Daemon == "" {
		return string(app)
	}
	return t.Daemon
}

// OnBan kills the sessions of the banned address and records each kill.
func (p *Plugin) OnBan(ctx context.Context, b *events.Ban) error {
	t := p.targets[b.App]
	if len(t.Ports) == 0 {
		return nil
	}
	name := daemon(b.App, t)
	killed := p.term.TerminateSessions(b.Address, name, t.Ports)
	if len(killed) > 0 {
		p.logger.Info("sessions terminated",
			logging.Addr(b.Address.String()),
			logging.App(string(b.App)),
			zap.String("daemon", name),
			zap.Int("count", len(killed)))
	}
	if p.store == nil {
		return nil
	}
	var errs []error
	for _, t := range killed {
		if err := p.store.CreateTermination(ctx, b.ID, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

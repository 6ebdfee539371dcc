package plugins

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/classify"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/metrics"
)

// TriggerSource returns the failure count at which an app bans an address.
type TriggerSource interface {
	Trigger(app events.App) int
}

// Pipeline turns log lines into bans and runs plugin hooks in order.
type Pipeline struct {
	store      Store
	plugins    []Plugin
	eventHooks []EventHook
	banHooks   []BanHook

	classifier Classifier
	logs       classify.LogSets
	triggers   TriggerSource
	enricher   Enricher
	enrichMode enrich.Mode
	banner     Banner
	tracker    *Tracker

	now    func() time.Time
	logger *zap.Logger
}

// NewPipeline creates a new Pipeline with the given logger.
func NewPipeline(logger *zap.Logger) *Pipeline {
	return &Pipeline{
		logger:     logger,
		plugins:    make([]Plugin, 0),
		eventHooks: make([]EventHook, 0),
		banHooks:   make([]BanHook, 0),
		enrichMode: enrich.ModeRBL,
		tracker:    NewTracker(DefaultTrackerSize, DefaultInterval, 0),
		now:        time.Now,
	}
}

// SetStore sets the storage backend for the pipeline.
func (p *Pipeline) SetStore(store Store) {
	p.store = store
}

// SetClassifier sets the classifier, the log file categories lines are
// matched against and the per-app triggers.
func (p *Pipeline) SetClassifier(c Classifier, logs classify.LogSets, triggers TriggerSource) {
	p.classifier = c
	p.logs = logs
	p.triggers = triggers
}

// SetEnricher sets the reputation source consulted for every event.
func (p *Pipeline) SetEnricher(e Enricher, mode enrich.Mode) {
	p.enricher = e
	p.enrichMode = mode
}

// SetBanner sets the firewall collaborator.
func (p *Pipeline) SetBanner(b Banner) {
	p.banner = b
}

// SetTracker replaces the failure tracker.
func (p *Pipeline) SetTracker(t *Tracker) {
	p.tracker = t
}

// Register detects which capability interfaces a plugin implements
// and adds it to the appropriate hook lists.
func (p *Pipeline) Register(plugin Plugin) {
	p.plugins = append(p.plugins, plugin)
	if hook, ok := plugin.(EventHook); ok {
		p.eventHooks = append(p.eventHooks, hook)
	}
	if hook, ok := plugin.(BanHook); ok {
		p.banHooks = append(p.banHooks, hook)
	}
}

// Init initializes every registered plugin in registration order.
func (p *Pipeline) Init(config GlobalConfigView) error {
	ictx := InitContext{Logger: p.logger, Store: p.store, Config: config}
	for _, plugin := range p.plugins {
		if err := plugin.Init(ictx); err != nil {
			return fmt.Errorf("init plugin %s: %w", plugin.ID(), err)
		}
	}
	return nil
}

// ListPlugins returns metadata about all registered plugins.
func (p *Pipeline) ListPlugins() []PluginInfo {
	infos := make([]PluginInfo, 0, len(p.plugins))
	for _, plugin := range p.plugins {
		info := PluginInfo{
			ID:      plugin.ID(),
			Type:    PluginTypeFeature,
			Enabled: true,
		}
		if cp, ok := plugin.(CorePlugin); ok && cp.IsCore() {
			info.Type = PluginTypeCore
		}
		if cp, ok := plugin.(ConfigurablePlugin); ok {
			info.Config = cp.Config()
		}
		infos = append(infos, info)
	}
	return infos
}

// ProcessLine classifies one line read from source and runs the resulting
// event through ProcessEvent. Lines that do not classify return nil.
func (p *Pipeline) ProcessLine(ctx context.Context, line, source string) (*events.Ban, error) {
	if p.classifier == nil {
		return nil, errors.New("pipeline has no classifier")
	}
	ev, ok := p.classifier.Classify(line, source, p.logs)
	if !ok {
		return nil, nil
	}
	return p.ProcessEvent(ctx, &ev)
}

// ProcessEvent runs hooks in order: Event → Storage → Enrich → Ban → BanHooks.
// It returns the ban raised for the event, if any.
func (p *Pipeline) ProcessEvent(ctx context.Context, e *events.SecurityEvent) (*events.Ban, error) {
	address := e.Address.String()
	metrics.EventsTotal.WithLabelValues(string(e.App)).Inc()

	for _, hook := range p.eventHooks {
		if err := hook.OnEvent(ctx, e); err != nil {
			p.logger.Warn("event hook error",
				zap.String("plugin", pluginID(hook)),
				zap.Error(err))
		}
	}

	if p.store != nil {
		id, err := p.store.CreateEvent(ctx, e)
		if err != nil {
			return nil, err
		}
		e.ID = id
	}

	if p.banned(ctx, address) {
		p.logger.Debug("address already banned", logging.Addr(address), logging.App(string(e.App)))
		return nil, nil
	}

	b := &events.Ban{
		Address: e.Address,
		App:     e.App,
		Count:   p.tracker.Record(e.App, address),
		Event:   e,
	}
	p.logger.Debug("security event",
		logging.Addr(address),
		logging.App(string(e.App)),
		logging.Rule(e.Rule),
		logging.Account(e.Account),
		zap.Int("count", b.Count))

	if p.enricher != nil {
		rec := p.enricher.Enrich(ctx, e.Address, p.enrichMode, enrich.Options{})
		b.Reputation = reputation(rec)
		if rec.Listed() {
			b.Reason = events.BanReputation
			b.RBLHit = rec.RBLHit
		}
	}

	if b.Reason == "" {
		trigger := p.trigger(e.App)
		if trigger <= 0 || b.Count < trigger {
			return nil, nil
		}
		b.Reason = events.BanTrigger
	}

	if err := p.ban(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *Pipeline) trigger(app events.App) int {
	if p.triggers == nil {
		return 0
	}
	return p.triggers.Trigger(app)
}

func (p *Pipeline) banned(ctx context.Context, address string) bool {
	if p.tracker.Banned(address) {
		return true
	}
	if p.store == nil {
		return false
	}
	banned, err := p.store.IsBanned(ctx, address)
	if err != nil {
		p.logger.Warn("ban lookup failed", logging.Addr(address), zap.Error(err))
		return false
	}
	return banned
}

func (p *Pipeline) ban(ctx context.Context, b *events.Ban) error {
	address := b.Address.String()
	b.BannedAt = p.now()

	if p.banner != nil {
		if err := p.banner.Ban(ctx, b); err != nil {
			return fmt.Errorf("ban %s: %w", address, err)
		}
	}
	p.tracker.MarkBanned(b.App, address)
	metrics.BansTotal.WithLabelValues(string(b.Reason)).Inc()

	p.logger.Info("address banned",
		logging.Addr(address),
		logging.App(string(b.App)),
		zap.String("reason", string(b.Reason)),
		zap.Int("count", b.Count),
		zap.String("rbl_hit", b.RBLHit))

	if p.store != nil {
		id, err := p.store.CreateBan(ctx, b)
		if err != nil {
			p.logger.Warn("failed to store ban", logging.Addr(address), zap.Error(err))
		} else {
			b.ID = id
			if b.Reputation != nil {
				if err := p.store.SaveReputation(ctx, id, *b.Reputation); err != nil {
					p.logger.Warn("failed to save reputation", logging.Addr(address), zap.Error(err))
				}
			}
		}
	}

	for _, hook := range p.banHooks {
		if err := hook.OnBan(ctx, b); err != nil {
			p.logger.Warn("ban hook error",
				zap.String("plugin", pluginID(hook)),
				zap.Error(err))
		}
	}
	return nil
}

// reputation copies the enrichment of rec, or returns nil when nothing
// was found.
func reputation(rec enrich.Record) *events.Reputation {
	r := events.Reputation{
		CountryCode:     rec.CountryCode,
		CountryName:     rec.CountryName,
		Region:          rec.Region,
		City:            rec.City,
		ASN:             rec.ASN,
		ASNOrg:          rec.ASNOrg,
		Hostname:        rec.Hostname,
		RBLExplanations: rec.RBLExplanations,
	}
	if r.CountryCode == "" && r.CountryName == "" && r.Region == "" && r.City == "" &&
		r.ASN == 0 && r.ASNOrg == "" && r.Hostname == "" && len(r.RBLExplanations) == 0 {
		return nil
	}
	return &r
}

func pluginID(hook any) string {
	if p, ok := hook.(Plugin); ok {
		return p.ID()
	}
	return "unknown"
}

// Package plugins defines the plugin interfaces and capability hooks for the
// event pipeline.
package plugins

import (
	"context"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/classify"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/events"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	ID() string
	Init(ctx InitContext) error
}

// InitContext provides access to shared resources during plugin initialization.
type InitContext struct {
	Logger *zap.Logger
	Store  Store
	Config GlobalConfigView
}

// Store provides storage operations for the pipeline and plugins.
type Store interface {
	CreateEvent(ctx context.Context, e *events.SecurityEvent) (int64, error)
	CreateBan(ctx context.Context, b *events.Ban) (int64, error)
	SaveReputation(ctx context.Context, banID int64, r events.Reputation) error
	CreateTermination(ctx context.Context, banID int64, t events.Termination) error
	// IsBanned reports whether a ban for address is still in force.
	IsBanned(ctx context.Context, address string) (bool, error)
}

// GlobalConfigView provides read access to global configuration.
type GlobalConfigView interface {
	Get(key string, out any) error
}

// Classifier reduces a log line to a security event.
type Classifier interface {
	Classify(line, source string, logs classify.LogSets) (events.SecurityEvent, bool)
}

// Enricher gathers the reputation of an address.
type Enricher interface {
	Enrich(ctx context.Context, a addr.Address, mode enrich.Mode, opts enrich.Options) enrich.Record
}

// Banner blocks an address at the firewall.
type Banner interface {
	Ban(ctx context.Context, b *events.Ban) error
}

// EventHook is called for every classified event before it is stored.
type EventHook interface {
	OnEvent(ctx context.Context, e *events.SecurityEvent) error
}

// BanHook is called after an address has been banned and the ban stored.
type BanHook interface {
	OnBan(ctx context.Context, b *events.Ban) error
}

// PluginType indicates whether a plugin is core infrastructure or a feature plugin.
type PluginType string

// Plugin type constants.
const (
	PluginTypeCore    PluginType = "core"
	PluginTypeFeature PluginType = "feature"
)

// CorePlugin is an optional interface that core plugins can implement.
type CorePlugin interface {
	IsCore() bool
}

// ConfigurablePlugin is an optional interface for plugins that expose global configuration.
type ConfigurablePlugin interface {
	Config() map[string]any
}

// PluginInfo contains metadata about a registered plugin.
type PluginInfo struct {
	ID      string         `json:"id"`
	Type    PluginType     `json:"type"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config,omitempty"`
}

// PluginRegistry provides read access to registered plugins.
type PluginRegistry interface {
	ListPlugins() []PluginInfo
}

// Package storage implements the storage core plugin that persists events,
// bans and terminations to SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/db"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/models"
	"github.com/rsclarke/ipsguard/internal/plugins"
)

// Plugin is the storage core plugin. It implements plugins.Store.
type Plugin struct {
	db *sql.DB
	// banTTL is how long a stored ban keeps an address banned. Zero keeps
	// it forever.
	banTTL time.Duration
	now    func() time.Time
	logger *zap.Logger
}

var _ plugins.Store = (*Plugin)(nil)

// New creates a new storage Plugin with the given database connection.
func New(database *sql.DB, banTTL time.Duration) *Plugin {
	return &Plugin{db: database, banTTL: banTTL, now: time.Now, logger: zap.NewNop()}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return "storage" }

// IsCore marks the plugin as core infrastructure.
func (p *Plugin) IsCore() bool { return true }

// Init initializes the plugin with the given context.
func (p *Plugin) Init(ctx plugins.InitContext) error {
	p.logger = ctx.Logger.Named("storage")
	return nil
}

// Config exposes the ban lifetime.
func (p *Plugin) Config() map[string]any {
	return map[string]any{"ban_ttl": p.banTTL.String()}
}

// CreateEvent persists a security event and returns its ID.
func (p *Plugin) CreateEvent(_ context.Context, e *events.SecurityEvent) (int64, error) {
	id, err := db.CreateEvent(p.db, models.SecurityEvent{
		Address:    e.Address.String(),
		App:        string(e.App),
		Account:    e.Account,
		Reason:     e.Reason,
		Rule:       e.Rule,
		Source:     e.Source,
		Line:       e.Line,
		OccurredAt: e.OccurredAt.Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	return id, nil
}

// CreateBan persists a ban and returns its ID.
func (p *Plugin) CreateBan(_ context.Context, b *events.Ban) (int64, error) {
	row := models.Ban{
		Address:  b.Address.String(),
		App:      string(b.App),
		Reason:   string(b.Reason),
		Count:    b.Count,
		RBLHit:   b.RBLHit,
		BannedAt: b.BannedAt.Unix(),
	}
	if b.Event != nil && b.Event.ID != 0 {
		id := b.Event.ID
		row.EventID = &id
	}
	id, err := db.CreateBan(p.db, row)
	if err != nil {
		return 0, fmt.Errorf("create ban: %w", err)
	}
	return id, nil
}

// SaveReputation persists the reputation recorded with a ban.
func (p *Plugin) SaveReputation(_ context.Context, banID int64, r events.Reputation) error {
	return db.SaveReputation(p.db, models.Reputation{
		BanID:           banID,
		CountryCode:     r.CountryCode,
		CountryName:     r.CountryName,
		Region:          r.Region,
		City:            r.City,
		ASN:             r.ASN,
		ASNOrg:          r.ASNOrg,
		Hostname:        r.Hostname,
		RBLExplanations: r.RBLExplanations,
	})
}

// CreateTermination records a killed process. A zero banID stores the
// termination without a ban.
func (p *Plugin) CreateTermination(_ context.Context, banID int64, t events.Termination) error {
	row := models.Termination{
		Address:  t.Address,
		PID:      t.PID,
		Exe:      t.Exe,
		Inode:    t.Inode,
		KilledAt: p.now().Unix(),
	}
	if banID != 0 {
		row.BanID = &banID
	}
	if _, err := db.CreateTermination(p.db, row); err != nil {
		return fmt.Errorf("create termination: %w", err)
	}
	return nil
}

// IsBanned reports whether a ban for address is younger than the ban TTL.
func (p *Plugin) IsBanned(_ context.Context, address string) (bool, error) {
	var since int64
	if p.banTTL > 0 {
		since = p.now().Add(-p.banTTL).Unix()
	}
	return db.IsBanned(p.db, address, since)
}

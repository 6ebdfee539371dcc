package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/audit"
	"github.com/rsclarke/ipsguard/internal/cache"
	"github.com/rsclarke/ipsguard/internal/classify"
	"github.com/rsclarke/ipsguard/internal/enforce"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/geo"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/netsnap"
	"github.com/rsclarke/ipsguard/internal/rbl"
	"github.com/rsclarke/ipsguard/internal/resolver"
)

// snapshotTTL bounds how long an interface snapshot is reused for port-scan
// classification.
const snapshotTTL = 30 * time.Second

// newClassifier builds the classifier and, when configured, the custom rule
// table it consults first.
func newClassifier() (classify.Scanning, *classify.Overrides, error) {
	log := logger.Named("classify")
	var opts []classify.Option
	var overrides *classify.Overrides
	if path := cfg.String("classify.override_file"); path != "" {
		var err error
		overrides, err = classify.NewOverrides(path, log)
		if err != nil {
			return classify.Scanning{}, nil, fmt.Errorf("load custom rules: %w", err)
		}
		opts = append(opts, classify.WithOverrides(overrides))
	}
	c := classify.New(cfg.ClassifySettings(), log, opts...)
	return classify.Scanning{
		Classifier: c,
		Snapshots:  netsnap.Cached(netsnap.ProviderFunc(netsnap.Take), snapshotTTL),
	}, overrides, nil
}

// newEnricher wires the geo databases, the resolver, the host name cache
// and the RBL checker. Missing geo data only disables location lookups.
// The returned function releases the geo files.
func newEnricher() (*enrich.Enricher, func(), error) {
	res, err := resolver.New(cfg.ResolverConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("create resolver: %w", err)
	}
	hosts, err := cache.NewHostCache(cfg.String("hosts.cache_file"), cfg.Int("hosts.cache_size"))
	if err != nil {
		return nil, nil, fmt.Errorf("open host cache: %w", err)
	}
	zones, err := cfg.Zones()
	if err != nil {
		return nil, nil, fmt.Errorf("load rbl zones: %w", err)
	}
	rblCache, err := cache.NewRBLCache(cfg.String("rbl.cache_dir"))
	if err != nil {
		return nil, nil, err
	}

	e := &enrich.Enricher{
		Hosts:    hosts,
		Resolver: res,
		RBL: &rbl.Checker{
			Resolver: res,
			Zones:    zones,
			Cache:    rblCache,
			Timeout:  cfg.Duration("rbl.timeout"),
			Parallel: cfg.Int("rbl.parallel"),
			Logger:   logger.Named("rbl"),
		},
		PTRTimeout: cfg.Duration("resolver.timeout"),
		Logger:     logger.Named("enrich"),
	}

	closeFn := func() {}
	db, err := geo.Open(geo.Variant(cfg.String("geo.variant")), cfg.String("geo.dir"))
	switch {
	case err == nil:
		e.Geo = db
		closeFn = func() { _ = db.Close() }
	case errors.Is(err, geo.ErrUnavailable):
		logger.Warn("geo lookups disabled", zap.Error(err))
	default:
		return nil, nil, err
	}
	return e, closeFn, nil
}

// newEnforcer returns the session killer. auditor may be nil.
func newEnforcer(auditor *audit.Logger) *enforce.Enforcer {
	e := &enforce.Enforcer{
		Root:   cfg.String("enforce.proc_root"),
		Logger: logger.Named("enforce"),
	}
	if auditor != nil {
		e.Audit = auditor
	}
	return e
}

// openAudit opens the audit file, falling back to no audit trail when it
// cannot be created.
func openAudit() *audit.Logger {
	a, err := audit.New(cfg.AuditConfig())
	if err != nil {
		logger.Warn("audit trail disabled", logging.File(cfg.String("audit.file")), zap.Error(err))
		return nil
	}
	return a
}

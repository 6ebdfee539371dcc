package classify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/logging"
)

// CustomRuleSpec is one rule of an override file. The pattern must contain
// a named group "ip" and may contain a named group "account".
type CustomRuleSpec struct {
	Name     string `yaml:"name"`
	App      string `yaml:"app"`
	Reason   string `yaml:"reason"`
	Log      string `yaml:"log"`
	Pattern  string `yaml:"pattern"`
	Disabled bool   `yaml:"disabled"`
}

type overrideFile struct {
	Rules []CustomRuleSpec `yaml:"rules"`
}

type customRule struct {
	spec    CustomRuleSpec
	app     events.App
	re      *regexp.Regexp
	ip      int
	account int
}

// NewCustomRule compiles spec into a Rule.
func NewCustomRule(spec CustomRuleSpec) (Rule, error) {
	if spec.Name == "" {
		return nil, errors.New("rule has no name")
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", spec.Name, err)
	}
	r := &customRule{spec: spec, re: re, app: events.App(spec.App)}
	if r.app == "" {
		r.app = events.AppCustom
	}
	if r.spec.Log == "" {
		r.spec.Log = LogCustom
	}
	if r.spec.Reason == "" {
		r.spec.Reason = "Custom rule " + spec.Name
	}
	r.ip = re.SubexpIndex("ip")
	r.account = re.SubexpIndex("account")
	if r.ip < 0 {
		return nil, fmt.Errorf("rule %s: pattern has no (?P<ip>...) group", spec.Name)
	}
	return r, nil
}

func (r *customRule) Name() string { return r.spec.Name }

func (r *customRule) Enabled(_ *Settings) bool { return !r.spec.Disabled }

func (r *customRule) Match(in Input) (events.SecurityEvent, Verdict) {
	if !in.Logs.Has(r.spec.Log, in.Source) {
		return events.SecurityEvent{}, Skip
	}
	m := r.re.FindStringSubmatch(in.Line)
	if m == nil {
		return events.SecurityEvent{}, Skip
	}
	a, err := addr.Validate(addr.Normalize(m[r.ip]), false)
	if err != nil {
		return events.SecurityEvent{}, Reject
	}
	ev := events.SecurityEvent{
		Address: a,
		App:     r.app,
		Reason:  r.spec.Reason,
		Rule:    r.spec.Name,
	}
	if r.account > 0 {
		ev.Account = m[r.account]
	}
	return ev, Hit
}

// LoadRules reads an override file. Invalid rules are skipped and reported
// through the returned error alongside the valid ones.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var rules []Rule
	var errs []error
	for _, spec := range f.Rules {
		r, err := NewCustomRule(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, errors.Join(errs...)
}

// Overrides is a reloadable custom rule table.
type Overrides struct {
	path   string
	rules  atomic.Pointer[[]Rule]
	logger *zap.Logger
}

// NewOverrides loads the override file at path. A missing file yields an
// empty table.
func NewOverrides(path string, logger *zap.Logger) (*Overrides, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Overrides{path: path, logger: logger}
	empty := []Rule{}
	o.rules.Store(&empty)
	if err := o.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return o, err
	}
	return o, nil
}

// Rules returns the current table.
func (o *Overrides) Rules() []Rule {
	return *o.rules.Load()
}

// Reload re-reads the override file. On a parse failure the previous table
// is kept; individually invalid rules are dropped and logged.
func (o *Overrides) Reload() error {
	rules, err := LoadRules(o.path)
	if rules == nil && err != nil {
		return err
	}
	if err != nil {
		o.logger.Warn("skipped invalid custom rules", logging.File(o.path), zap.Error(err))
	}
	o.rules.Store(&rules)
	o.logger.Info("custom rules loaded", logging.File(o.path), zap.Int("rules", len(rules)))
	return nil
}

// Watch reloads the table whenever the override file changes, until ctx
// is cancelled. The parent directory is watched so editors that replace
// the file are followed.
func (o *Overrides) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(o.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", o.path, err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		name := filepath.Clean(o.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := o.Reload(); err != nil {
					o.logger.Warn("custom rule reload failed", zap.Error(err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				o.logger.Warn("custom rule watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

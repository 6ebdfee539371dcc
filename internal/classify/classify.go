// Package classify turns service log lines into security events.
//
// Rules are evaluated in a fixed priority order and the first enabled rule
// whose pattern matches decides the line. A more specific pattern must
// therefore be listed before a more general one that would shadow it.
package classify

import (
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/logging"
)

// Log categories a rule can be bound to.
const (
	LogSSHD        = "SSHD_LOG"
	LogFTPD        = "FTPD_LOG"
	LogPOP3D       = "POP3D_LOG"
	LogIMAPD       = "IMAPD_LOG"
	LogHtaccess    = "HTACCESS_LOG"
	LogModSec      = "MODSEC_LOG"
	LogBind        = "BIND_LOG"
	LogCPanel      = "CPANEL_LOG"
	LogSMTPAuth    = "SMTPAUTH_LOG"
	LogWebmin      = "WEBMIN_LOG"
	LogSuhosin     = "SUHOSIN_LOG"
	LogMySQL       = "MYSQL_LOG"
	LogDirectAdmin = "DIRECTADMIN_LOG"
	LogIPTables    = "IPTABLES_LOG"
	LogSU          = "SU_LOG"
	LogSudo        = "SUDO_LOG"
	LogCustom      = "CUSTOM_LOG"
)

// LogSets maps a log category to the set of file paths that belong to it.
type LogSets map[string]map[string]bool

// Has reports whether path is a member of category.
func (l LogSets) Has(category, path string) bool {
	return l[category][path]
}

// Add registers paths under category.
func (l LogSets) Add(category string, paths ...string) {
	if l[category] == nil {
		l[category] = make(map[string]bool)
	}
	for _, p := range paths {
		l[category][p] = true
	}
}

// Input is one log line together with the file it came from.
type Input struct {
	Line   string
	Source string
	Logs   LogSets
}

// Verdict is the outcome of matching one rule against one line.
type Verdict int

// Rule verdicts.
const (
	// Skip means the rule does not apply to the line.
	Skip Verdict = iota
	// Hit means an event was extracted.
	Hit
	// Reject means the pattern matched but the payload failed validation.
	Reject
)

// Rule is one entry of an ordered rule table.
type Rule interface {
	Name() string
	Enabled(s *Settings) bool
	Match(in Input) (events.SecurityEvent, Verdict)
}

// RuleSource supplies a rule table that may change between calls.
type RuleSource interface {
	Rules() []Rule
}

// Classifier applies the override and built-in rule tables to log lines.
type Classifier struct {
	settings  Settings
	rules     []Rule
	overrides RuleSource
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithOverrides installs a custom rule table consulted before the built-ins.
func WithOverrides(src RuleSource) Option {
	return func(c *Classifier) { c.overrides = src }
}

// WithRules replaces the built-in rule table.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) { c.rules = rules }
}

// New creates a Classifier over the built-in rule table.
func New(settings Settings, logger *zap.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings.compile(logger)

	c := &Classifier{
		settings: settings,
		rules:    BuiltinRules(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the compiled settings in use.
func (c *Classifier) Settings() *Settings {
	return &c.settings
}

// Classify returns the security event described by line, if any.
func (c *Classifier) Classify(line, source string, logs LogSets) (events.SecurityEvent, bool) {
	in := Input{Line: line, Source: source, Logs: logs}

	if c.overrides != nil {
		if ev, v := c.first(c.overrides.Rules(), in); v == Hit {
			return c.stamp(ev, in), true
		}
	}

	ev, v := c.first(c.rules, in)
	if v != Hit {
		return events.SecurityEvent{}, false
	}
	return c.stamp(ev, in), true
}

func (c *Classifier) first(rules []Rule, in Input) (events.SecurityEvent, Verdict) {
	for _, r := range rules {
		if !r.Enabled(&c.settings) {
			continue
		}
		ev, v := r.Match(in)
		switch v {
		case Hit:
			return ev, Hit
		case Reject:
			c.logger.Debug("rule matched with invalid address",
				logging.Rule(r.Name()),
				logging.Source(in.Source))
			return events.SecurityEvent{}, Reject
		}
	}
	return events.SecurityEvent{}, Skip
}

func (c *Classifier) stamp(ev events.SecurityEvent, in Input) events.SecurityEvent {
	ev.Source = in.Source
	ev.Line = in.Line
	ev.OccurredAt = c.now()
	return ev
}

// patternRule is a built-in rule: a log category, a pattern and the capture
// groups holding the address and account.
type patternRule struct {
	name    string
	app     events.App
	reason  string
	log     string
	re      *regexp.Regexp
	ip      int
	account int
}

func (r *patternRule) Name() string { return r.name }

func (r *patternRule) Enabled(s *Settings) bool { return s.Enabled(r.app) }

func (r *patternRule) Match(in Input) (events.SecurityEvent, Verdict) {
	if !in.Logs.Has(r.log, in.Source) {
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
		Reason:  r.reason,
		Rule:    r.name,
	}
	if r.account > 0 && r.account < len(m) {
		ev.Account = m[r.account]
	}
	return ev, Hit
}

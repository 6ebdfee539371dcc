// Package config loads ipsguard settings from a YAML file, IPSGUARD_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/rsclarke/ipsguard/internal/audit"
	"github.com/rsclarke/ipsguard/internal/classify"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/rbl"
	"github.com/rsclarke/ipsguard/internal/resolver"
)

// EnvPrefix prefixes every environment override, with dots in keys
// replaced by underscores: IPSGUARD_RBL_TIMEOUT overrides rbl.timeout.
const EnvPrefix = "IPSGUARD"

// DefaultFile is read when no file is given and it exists.
const DefaultFile = "/etc/ipsguard/ipsguard.yaml"

// DefaultTriggers are the failure counts per app before a ban.
var DefaultTriggers = map[events.App]int{
	events.AppSSHD:        5,
	events.AppFTPD:        10,
	events.AppSMTPAuth:    5,
	events.AppHtpasswd:    5,
	events.AppModSecurity: 5,
	events.AppCPanel:      5,
}

// DefaultLogs are the files read per log category.
var DefaultLogs = map[string][]string{
	classify.LogSSHD:        {"/var/log/secure"},
	classify.LogFTPD:        {"/var/log/messages"},
	classify.LogPOP3D:       {"/var/log/maillog"},
	classify.LogIMAPD:       {"/var/log/maillog"},
	classify.LogHtaccess:    {"/usr/local/apache/logs/error_log"},
	classify.LogModSec:      {"/usr/local/apache/logs/error_log"},
	classify.LogBind:        {"/var/log/messages"},
	classify.LogCPanel:      {"/usr/local/cpanel/logs/login_log"},
	classify.LogSMTPAuth:    {"/var/log/exim_mainlog"},
	classify.LogWebmin:      {"/var/log/secure"},
	classify.LogSuhosin:     {"/var/log/messages"},
	classify.LogMySQL:       {"/var/lib/mysql/mysqld.log"},
	classify.LogDirectAdmin: {"/var/log/directadmin/login.log"},
	classify.LogIPTables:    {"/var/log/messages"},
	classify.LogSU:          {"/var/log/secure"},
	classify.LogSudo:        {"/var/log/secure"},
	classify.LogCustom:      {},
}

// Provider is the loaded configuration.
type Provider struct {
	v    *viper.Viper
	file string
}

// Load reads file, or DefaultFile when file is empty. A missing default
// file is not an error; a missing explicit file is.
func Load(file string) (*Provider, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := file != ""
	if !explicit {
		file = DefaultFile
	}
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || isNotExist(err)) {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		file = ""
	}
	return &Provider{v: v, file: file}, nil
}

// New returns a Provider holding only defaults, for tests and one-off
// commands.
func New() *Provider {
	v := viper.New()
	setDefaults(v)
	return &Provider{v: v}
}

func setDefaults(v *viper.Viper) {
	for _, app := range events.Apps {
		v.SetDefault("checks."+string(app), DefaultTriggers[app])
	}
	v.SetDefault("checks."+string(events.AppCustom), 0)
	v.SetDefault("track.logins", false)
	v.SetDefault("track.su", false)
	v.SetDefault("track.sudo", false)
	for cat, paths := range DefaultLogs {
		v.SetDefault(logKey(cat), paths)
	}

	v.SetDefault("ports.tcp_in", "20,21,22,25,53,80,110,143,443,465,587,993,995")
	v.SetDefault("ports.udp_in", "20,21,53")
	v.SetDefault("portscan.ignore_open_ports", true)

	v.SetDefault("rbl.zones", []string{})
	v.SetDefault("rbl.override_file", "")
	v.SetDefault("rbl.timeout", rbl.DefaultTimeout)
	v.SetDefault("rbl.cache_dir", "/var/lib/ipsguard/rbl")
	v.SetDefault("rbl.parallel", 4)

	v.SetDefault("geo.variant", "geolite")
	v.SetDefault("geo.dir", "/var/lib/ipsguard/geo")

	v.SetDefault("resolver.mode", string(resolver.ModeDNS))
	v.SetDefault("resolver.binary", resolver.DefaultBinary)
	v.SetDefault("resolver.server", "")
	v.SetDefault("resolver.timeout", 4*time.Second)

	v.SetDefault("hosts.cache_file", "/var/lib/ipsguard/hosts.cache")
	v.SetDefault("hosts.cache_size", 4096)

	v.SetDefault("enforce.proc_root", "/proc")
	v.SetDefault("enforce.daemons", map[string]string{string(events.AppSSHD): "sshd", string(events.AppFTPD): "ftpd"})
	v.SetDefault("enforce.ports", map[string][]int{string(events.AppSSHD): {22}})

	v.SetDefault("bans.interval", time.Hour)
	v.SetDefault("bans.ttl", time.Duration(0))
	v.SetDefault("bans.command", []string{})
	v.SetDefault("bans.tracker_size", 65536)

	v.SetDefault("enrich.mode", "rbl")
	v.SetDefault("audit.file", "/var/log/ipsguard.log")
	v.SetDefault("db.path", "/var/lib/ipsguard/ipsguard.db")
	v.SetDefault("db.retention", 30*24*time.Hour)
	v.SetDefault("classify.override_file", "")
	v.SetDefault("metrics.addr", "")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func logKey(category string) string {
	return "logs." + strings.ToLower(category)
}

// File returns the file the configuration was read from, empty when only
// defaults and the environment apply.
func (p *Provider) File() string { return p.file }

// Set overrides key, typically from a command line flag.
func (p *Provider) Set(key string, value any) { p.v.Set(key, value) }

// Get decodes the value at key into out.
func (p *Provider) Get(key string, out any) error {
	if !p.v.IsSet(key) {
		return fmt.Errorf("config key %q not set", key)
	}
	return p.v.UnmarshalKey(key, out)
}

// String returns the string at key.
func (p *Provider) String(key string) string { return p.v.GetString(key) }

// Int returns the integer at key.
func (p *Provider) Int(key string) int { return p.v.GetInt(key) }

// Bool returns the boolean at key.
func (p *Provider) Bool(key string) bool { return p.v.GetBool(key) }

// Duration returns the duration at key. Plain integers are seconds.
func (p *Provider) Duration(key string) time.Duration {
	switch v := p.v.Get(key).(type) {
	case int:
		return time.Duration(v) * time.Second
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return p.v.GetDuration(key)
}

// Strings returns the string list at key. A single string is split on
// commas.
func (p *Provider) Strings(key string) []string {
	if s, ok := p.v.Get(key).(string); ok {
		var out []string
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
		return out
	}
	return p.v.GetStringSlice(key)
}

// ClassifySettings builds the classifier settings.
func (p *Provider) ClassifySettings() classify.Settings {
	triggers := make(map[events.App]int)
	for _, app := range append(append([]events.App(nil), events.Apps...), events.AppCustom) {
		triggers[app] = p.Int("checks." + string(app))
	}
	return classify.Settings{
		Triggers:           triggers,
		TrackLogins:        p.Bool("track.logins"),
		TrackSU:            p.Bool("track.su"),
		TrackSudo:          p.Bool("track.sudo"),
		TCPIn:              p.String("ports.tcp_in"),
		UDPIn:              p.String("ports.udp_in"),
		PortScanIgnoreOpen: p.Bool("portscan.ignore_open_ports"),
	}
}

// LogSets returns the configured files per log category.
func (p *Provider) LogSets() classify.LogSets {
	logs := classify.LogSets{}
	for cat := range DefaultLogs {
		if paths := p.Strings(logKey(cat)); len(paths) > 0 {
			logs.Add(cat, paths...)
		}
	}
	return logs
}

// LogFiles returns every distinct configured log file, sorted.
func (p *Provider) LogFiles() []string {
	seen := make(map[string]bool)
	for _, paths := range p.LogSets() {
		for path := range paths {
			seen[path] = true
		}
	}
	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// EnforcePorts returns the local ports whose sessions are killed per app.
func (p *Provider) EnforcePorts() (map[events.App][]int, error) {
	var raw map[string][]int
	if err := p.Get("enforce.ports", &raw); err != nil {
		return nil, fmt.Errorf("enforce.ports: %w", err)
	}
	out := make(map[events.App][]int, len(raw))
	for app, ports := range raw {
		out[events.App(strings.ToLower(app))] = ports
	}
	return out, nil
}

// EnforceDaemons returns the executable name whose sessions are killed per
// app. Apps missing from the map are matched by their own name.
func (p *Provider) EnforceDaemons() (map[events.App]string, error) {
	var raw map[string]string
	if err := p.Get("enforce.daemons", &raw); err != nil {
		return nil, fmt.Errorf("enforce.daemons: %w", err)
	}
	out := make(map[events.App]string, len(raw))
	for app, name := range raw {
		out[events.App(strings.ToLower(app))] = name
	}
	return out, nil
}

// Zones returns the configured RBL zones, DefaultZones when none are set,
// with the override file applied.
func (p *Provider) Zones() (*rbl.ZoneList, error) {
	var zones []rbl.Zone
	for _, s := range p.Strings("rbl.zones") {
		zones = append(zones, rbl.ParseZone(s))
	}
	return rbl.LoadZones(zones, p.String("rbl.override_file"))
}

// ResolverConfig returns the DNS backend configuration.
func (p *Provider) ResolverConfig() resolver.Config {
	return resolver.Config{
		Mode:   resolver.Mode(p.String("resolver.mode")),
		Server: p.String("resolver.server"),
		Binary: p.String("resolver.binary"),
	}
}

// AuditConfig returns the audit file configuration.
func (p *Provider) AuditConfig() audit.Config {
	return audit.DefaultConfig(p.String("audit.file"))
}

// Watch calls fn whenever the configuration file changes on disk.
func (p *Provider) Watch(fn func()) {
	if p.file == "" {
		return
	}
	p.v.OnConfigChange(func(fsnotify.Event) { fn() })
	p.v.WatchConfig()
}

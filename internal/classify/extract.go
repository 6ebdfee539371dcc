package classify

import (
	"net/netip"
	"regexp"
	"strconv"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/netsnap"
)

// LoginEvent is a successful POP3 or IMAP login.
type LoginEvent struct {
	App     events.App
	Account string
	Address addr.Address
}

type loginRule struct {
	app     events.App
	log     string
	re      *regexp.Regexp
	account int
	ip      int
}

var loginRules = []loginRule{
	{events.AppPOP3D, LogPOP3D, regexp.MustCompile(`dovecot(?:\[\d+\])?: pop3-login: Login: user=<([^>]*)>,.*?\brip=([^,\s]+)`), 1, 2},
	{events.AppPOP3D, LogPOP3D, regexp.MustCompile(`pop3d(?:-ssl)?: LOGIN, user=([^,]+), ip=\[([^\]]+)\]`), 1, 2},
	{events.AppIMAPD, LogIMAPD, regexp.MustCompile(`dovecot(?:\[\d+\])?: imap-login: Login: user=<([^>]*)>,.*?\brip=([^,\s]+)`), 1, 2},
	{events.AppIMAPD, LogIMAPD, regexp.MustCompile(`imapd(?:-ssl)?: LOGIN, user=([^,]+), ip=\[([^\]]+)\]`), 1, 2},
}

// Login extracts a successful POP3/IMAP login from line.
func (c *Classifier) Login(line, source string, logs LogSets) (LoginEvent, bool) {
	if !c.settings.TrackLogins {
		return LoginEvent{}, false
	}
	for _, r := range loginRules {
		if !logs.Has(r.log, source) {
			continue
		}
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		a, err := addr.Validate(addr.Normalize(m[r.ip]), false)
		if err != nil {
			return LoginEvent{}, false
		}
		return LoginEvent{App: r.app, Account: m[r.account], Address: a}, true
	}
	return LoginEvent{}, false
}

// Session outcomes.
const (
	SessionOpened = "Successful login"
	SessionFailed = "Failed login"
)

// SessionEvent is a su or sudo privilege change.
type SessionEvent struct {
	Tool   string
	To     string
	From   string
	Status string
}

type sessionRule struct {
	tool   string
	log    string
	re     *regexp.Regexp
	to     int
	from   int
	status string
}

var sessionRules = []sessionRule{
	{"su", LogSU, regexp.MustCompile(`\bsu(?:\[\d+\])?: FAILED SU \(to (\S+)\) (\S+) on`), 1, 2, SessionFailed},
	{"su", LogSU, regexp.MustCompile(`\bsu(?:\[\d+\])?: pam_unix\(su(?:-l)?:auth\): authentication failure;.*\bruser=(\S*) .*\buser=(\S+)`), 2, 1, SessionFailed},
	{"su", LogSU, regexp.MustCompile(`\bsu(?:\[\d+\])?: pam_unix\(su(?:-l)?:session\): session opened for user (\S+?)(?:\(uid=\d+\))? by (\S*?)(?:\(uid=\d+\))?$`), 1, 2, SessionOpened},
	{"su", LogSU, regexp.MustCompile(`\bsu(?:\[\d+\])?: (?:\(to (\S+)\) (\S+) on|Successful su for (\S+) by (\S+))`), 0, 0, SessionOpened},
	{"sudo", LogSudo, regexp.MustCompile(`\bsudo(?:\[\d+\])?:\s+(\S+) : (?:\d+ incorrect password attempts?|user NOT in sudoers|command not allowed) ;.*\bUSER=(\S+)`), 2, 1, SessionFailed},
	{"sudo", LogSudo, regexp.MustCompile(`\bsudo(?:\[\d+\])?:\s+(\S+) : TTY=.*? ; USER=(\S+) ; COMMAND=`), 2, 1, SessionOpened},
}

// PrivilegedSession extracts a su or sudo session change from line.
func (c *Classifier) PrivilegedSession(line, source string, logs LogSets) (SessionEvent, bool) {
	for _, r := range sessionRules {
		if r.tool == "su" && !c.settings.TrackSU || r.tool == "sudo" && !c.settings.TrackSudo {
			continue
		}
		if !logs.Has(r.log, source) {
			continue
		}
		m := r.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ev := SessionEvent{Tool: r.tool, Status: r.status}
		if r.to == 0 {
			// "(to root) alice on" and "Successful su for root by alice"
			// share one pattern with alternate groups.
			ev.To, ev.From = m[1], m[2]
			if ev.To == "" {
				ev.To, ev.From = m[3], m[4]
			}
		} else {
			ev.To, ev.From = m[r.to], m[r.from]
		}
		return ev, true
	}
	return SessionEvent{}, false
}

// ScanHit is a blocked inbound packet attributed to a remote address.
type ScanHit struct {
	Address  addr.Address
	Protocol string
	// Port is the destination port, 0 for protocols without ports.
	Port int
}

// Target returns the port, or the protocol when the packet has no port.
func (h ScanHit) Target() string {
	if h.Port > 0 {
		return strconv.Itoa(h.Port)
	}
	return h.Protocol
}

var portScanRe = regexp.MustCompile(`kernel:.*?Firewall: \*(?:TCP|UDP|ICMP|ICMPV6)_IN Blocked\* IN=\S+ .*?SRC=(\S+) DST=(\S+) .*?PROTO=(\S+)(?: SPT=\d+ DPT=(\d+))?`)

// PortScan extracts a blocked-packet hit from a kernel firewall log line.
// Packets to a broadcast address or from a local interface are ignored, as
// are packets to open inbound ports when configured to do so.
func (c *Classifier) PortScan(line, source string, logs LogSets, snap *netsnap.Snapshot) (ScanHit, bool) {
	if !c.settings.Enabled(events.AppPortScan) || !logs.Has(LogIPTables, source) {
		return ScanHit{}, false
	}
	m := portScanRe.FindStringSubmatch(line)
	if m == nil {
		return ScanHit{}, false
	}

	if dst, err := netip.ParseAddr(m[2]); err == nil && snap.IsBroadcast(dst) {
		return ScanHit{}, false
	}
	src, err := addr.Validate(addr.Normalize(m[1]), false)
	if err != nil || snap.IsLocal(src.Addr) {
		return ScanHit{}, false
	}

	hit := ScanHit{Address: src, Protocol: m[3]}
	if m[4] != "" {
		hit.Port, _ = strconv.Atoi(m[4])
		if c.settings.PortScanIgnoreOpen && c.settings.openPort(hit.Protocol, hit.Port) {
			return ScanHit{}, false
		}
	}
	return hit, true
}

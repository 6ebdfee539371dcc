package classify

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/netsnap"
)

func allEnabled() Settings {
	triggers := make(map[events.App]int)
	for _, app := range events.Apps {
		triggers[app] = 5
	}
	return Settings{
		Triggers:    triggers,
		TrackLogins: true,
		TrackSU:     true,
		TrackSudo:   true,
		TCPIn:       "20,21,22,25,80,443,2077:2083",
		UDPIn:       "53",
	}
}

func testLogs() LogSets {
	logs := LogSets{}
	logs.Add(LogSSHD, "/var/log/secure")
	logs.Add(LogFTPD, "/var/log/messages", "/var/log/vsftpd.log")
	logs.Add(LogPOP3D, "/var/log/maillog")
	logs.Add(LogIMAPD, "/var/log/maillog")
	logs.Add(LogHtaccess, "/var/log/apache/error_log")
	logs.Add(LogModSec, "/var/log/apache/error_log")
	logs.Add(LogSuhosin, "/var/log/messages")
	logs.Add(LogBind, "/var/log/messages")
	logs.Add(LogCPanel, "/usr/local/cpanel/logs/login_log")
	logs.Add(LogWebmin, "/var/log/secure")
	logs.Add(LogDirectAdmin, "/var/log/directadmin/login.log")
	logs.Add(LogSMTPAuth, "/var/log/exim_mainlog", "/var/log/maillog")
	logs.Add(LogMySQL, "/var/log/mysqld.log")
	logs.Add(LogIPTables, "/var/log/messages")
	logs.Add(LogSU, "/var/log/secure")
	logs.Add(LogSudo, "/var/log/secure")
	logs.Add(LogCustom, "/var/log/custom.log")
	return logs
}

func TestClassifyBuiltinRules(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		line    string
		rule    string
		app     events.App
		ip      string
		account string
	}{
		{
			name:   "sshd invalid user",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: Failed password for invalid user foo from 203.0.113.7 port 4444 ssh2",
			rule:   "sshd_failed_invalid_user", app: events.AppSSHD, ip: "203.0.113.7", account: "foo",
		},
		{
			name:   "sshd failed password",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: Failed password for root from 203.0.113.7 port 4444 ssh2",
			rule:   "sshd_failed", app: events.AppSSHD, ip: "203.0.113.7", account: "root",
		},
		{
			name:   "sshd keyboard interactive ipv6",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: Failed keyboard-interactive/pam for admin from 2001:db8::7 port 4444 ssh2",
			rule:   "sshd_failed", app: events.AppSSHD, ip: "2001:db8::7", account: "admin",
		},
		{
			name:   "sshd invalid user",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: Invalid user oracle from 203.0.113.8 port 5555",
			rule:   "sshd_invalid_user", app: events.AppSSHD, ip: "203.0.113.8", account: "oracle",
		},
		{
			name:   "sshd pam failure",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: pam_unix(sshd:auth): authentication failure; logname= uid=0 euid=0 tty=ssh ruser= rhost=203.0.113.9  user=root",
			rule:   "sshd_pam_failure", app: events.AppSSHD, ip: "203.0.113.9", account: "root",
		},
		{
			name:   "sshd preauth close",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: Connection closed by authenticating user git 203.0.113.10 port 3333 [preauth]",
			rule:   "sshd_preauth_closed", app: events.AppSSHD, ip: "203.0.113.10", account: "git",
		},
		{
			name:   "sshd no identification",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host sshd[4321]: Did not receive identification string from 203.0.113.11",
			rule:   "sshd_no_identification", app: events.AppSSHD, ip: "203.0.113.11",
		},
		{
			name:   "pure-ftpd",
			source: "/var/log/messages",
			line:   "Oct 19 10:00:00 host pure-ftpd: (?@203.0.113.12) [WARNING] Authentication failed for user [bob]",
			rule:   "pureftpd_auth_failed", app: events.AppFTPD, ip: "203.0.113.12", account: "bob",
		},
		{
			name:   "proftpd",
			source: "/var/log/messages",
			line:   "Oct 19 10:00:00 host proftpd[1234]: host.example.com (203.0.113.13[203.0.113.13]) - USER bob (Login failed): Incorrect password",
			rule:   "proftpd_login_failed", app: events.AppFTPD, ip: "203.0.113.13", account: "bob",
		},
		{
			name:   "vsftpd mapped address",
			source: "/var/log/vsftpd.log",
			line:   `Sat Oct 19 10:00:00 2026 [pid 1234] [bob] FAIL LOGIN: Client "::ffff:203.0.113.14"`,
			rule:   "vsftpd_fail_login", app: events.AppFTPD, ip: "203.0.113.14", account: "bob",
		},
		{
			name:   "dovecot pop3",
			source: "/var/log/maillog",
			line:   "Oct 19 10:00:00 host dovecot: pop3-login: Aborted login (auth failed, 1 attempts in 2 secs): user=<bob>, method=PLAIN, rip=203.0.113.15, lip=198.51.100.1, session=<abc>",
			rule:   "dovecot_pop3_auth_failed", app: events.AppPOP3D, ip: "203.0.113.15", account: "bob",
		},
		{
			name:   "courier imap",
			source: "/var/log/maillog",
			line:   "Oct 19 10:00:00 host imapd: LOGIN FAILED, user=bob@example.com, ip=[::ffff:203.0.113.16]",
			rule:   "courier_imap_login_failed", app: events.AppIMAPD, ip: "203.0.113.16", account: "bob@example.com",
		},
		{
			name:   "apache htpasswd mismatch",
			source: "/var/log/apache/error_log",
			line:   `[Sat Oct 19 10:00:00.123 2026] [auth_basic:error] [pid 123] [client 203.0.113.17:51234] AH01617: user bob: authentication failure for "/admin": Password Mismatch`,
			rule:   "apache_password_mismatch", app: events.AppHtpasswd, ip: "203.0.113.17", account: "bob",
		},
		{
			name:   "modsecurity",
			source: "/var/log/apache/error_log",
			line:   `[Sat Oct 19 10:00:00.123 2026] [:error] [pid 1] [client 203.0.113.18:1234] [client 203.0.113.18] ModSecurity: Access denied with code 403 (phase 2).`,
			rule:   "modsecurity_access_denied", app: events.AppModSecurity, ip: "203.0.113.18",
		},
		{
			name:   "bind denied",
			source: "/var/log/messages",
			line:   "Oct 19 10:00:00 host named[123]: client @0x7f3a 203.0.113.19#53123 (example.com): query (cache) 'example.com/A/IN' denied",
			rule:   "bind_query_denied", app: events.AppBind, ip: "203.0.113.19",
		},
		{
			name:   "cpanel",
			source: "/usr/local/cpanel/logs/login_log",
			line:   `203.0.113.20 - bob [10/19/2026:10:00:00 -0000] "POST /login/?login_only=1 HTTP/1.1" FAILED LOGIN cpaneld: user password hash is miss`,
			rule:   "cpanel_failed_login", app: events.AppCPanel, ip: "203.0.113.20", account: "bob",
		},
		{
			name:   "webmin",
			source: "/var/log/secure",
			line:   "Oct 19 10:00:00 host webmin[123]: Invalid login as admin from 203.0.113.21",
			rule:   "webmin_invalid_login", app: events.AppWebmin, ip: "203.0.113.21", account: "admin",
		},
		{
			name:   "directadmin",
			source: "/var/log/directadmin/login.log",
			line:   "2026:10:19-10:00:00: '203.0.113.22' 2 failed login attempts. Account 'bob'",
			rule:   "directadmin_failed_login", app: events.AppDirectAdmin, ip: "203.0.113.22", account: "bob",
		},
		{
			name:   "exim auth",
			source: "/var/log/exim_mainlog",
			line:   "2026-10-19 10:00:00 dovecot_login authenticator failed for (User) [203.0.113.23]:51234: 535 Incorrect authentication data (set_id=bob)",
			rule:   "exim_auth_failed", app: events.AppSMTPAuth, ip: "203.0.113.23", account: "bob",
		},
		{
			name:   "postfix sasl",
			source: "/var/log/maillog",
			line:   "Oct 19 10:00:00 host postfix/smtpd[123]: warning: unknown[203.0.113.24]: SASL LOGIN authentication failed: UGFzc3dvcmQ6",
			rule:   "postfix_sasl_failed", app: events.AppSMTPAuth, ip: "203.0.113.24",
		},
		{
			name:   "suhosin",
			source: "/var/log/messages",
			line:   "Oct 19 10:00:00 host suhosin[123]: ALERT - script tried to increase memory_limit (attacker '203.0.113.25', file '/home/x/y.php')",
			rule:   "suhosin_alert", app: events.AppSuhosin, ip: "203.0.113.25",
		},
		{
			name:   "mysql",
			source: "/var/log/mysqld.log",
			line:   "2026-10-19T10:00:00.000000Z 8 [Warning] Access denied for user 'root'@'203.0.113.26' (using password: YES)",
			rule:   "mysql_access_denied", app: events.AppMySQL, ip: "203.0.113.26", account: "root",
		},
	}

	c := New(allEnabled(), zap.NewNop())
	logs := testLogs()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := c.Classify(tt.line, tt.source, logs)
			if !ok {
				t.Fatalf("expected event for %q", tt.line)
			}
			if ev.Rule != tt.rule {
				t.Errorf("rule = %q, want %q", ev.Rule, tt.rule)
			}
			if ev.App != tt.app {
				t.Errorf("app = %q, want %q", ev.App, tt.app)
			}
			if ev.Address.String() != tt.ip {
				t.Errorf("address = %q, want %q", ev.Address.String(), tt.ip)
			}
			if ev.Account != tt.account {
				t.Errorf("account = %q, want %q", ev.Account, tt.account)
			}
			if ev.Source != tt.source || ev.Line != tt.line {
				t.Error("source and line not stamped")
			}
		})
	}
}

func TestClassifyNonMatches(t *testing.T) {
	c := New(allEnabled(), zap.NewNop())
	logs := testLogs()

	tests := []struct {
		name   string
		source string
		line   string
	}{
		{"unrelated line", "/var/log/secure", "Oct 19 10:00:00 host sshd[1]: Accepted publickey for root from 203.0.113.7 port 22 ssh2"},
		{"invalid embedded address", "/var/log/secure", "Oct 19 10:00:00 host sshd[1]: Failed password for root from 999.1.1.1 port 22 ssh2"},
		{"loopback embedded address", "/var/log/secure", "Oct 19 10:00:00 host sshd[1]: Failed password for root from 127.0.0.1 port 22 ssh2"},
		{"hostname instead of address", "/var/log/secure", "Oct 19 10:00:00 host sshd[1]: Failed password for root from evil.example.com port 22 ssh2"},
		{"wrong log file", "/var/log/maillog", "Oct 19 10:00:00 host sshd[1]: Failed password for root from 203.0.113.7 port 22 ssh2"},
		{"empty line", "/var/log/secure", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ev, ok := c.Classify(tt.line, tt.source, logs); ok {
				t.Errorf("unexpected event %+v", ev)
			}
		})
	}
}

func TestClassifyDisabledApp(t *testing.T) {
	s := allEnabled()
	s.Triggers[events.AppSSHD] = 0
	c := New(s, zap.NewNop())

	line := "Oct 19 10:00:00 host sshd[1]: Failed password for root from 203.0.113.7 port 22 ssh2"
	if _, ok := c.Classify(line, "/var/log/secure", testLogs()); ok {
		t.Error("disabled sshd checks must not produce events")
	}
}

func TestRuleOrderingSpecificBeforeGeneral(t *testing.T) {
	line := "host sshd[1]: Failed password for invalid user foo from 203.0.113.7 port 22 ssh2"
	logs := testLogs()

	rules := BuiltinRules()
	var general Rule
	for _, r := range rules {
		if r.Name() == "sshd_failed" {
			general = r
		}
	}
	if general == nil {
		t.Fatal("sshd_failed rule not found")
	}

	// Alone, the general rule captures the wrong account.
	ev, v := general.Match(Input{Line: line, Source: "/var/log/secure", Logs: logs})
	if v != Hit || ev.Account != "invalid user foo" {
		t.Fatalf("general rule alone: verdict %v account %q", v, ev.Account)
	}

	c := New(allEnabled(), zap.NewNop())
	ev, ok := c.Classify(line, "/var/log/secure", logs)
	if !ok || ev.Account != "foo" {
		t.Errorf("table order broken: ok=%v account=%q", ok, ev.Account)
	}
}

type staticRules []Rule

func (s staticRules) Rules() []Rule { return s }

func TestOverridesTriedFirst(t *testing.T) {
	custom, err := NewCustomRule(CustomRuleSpec{
		Name:    "ssh_override",
		App:     "sshd",
		Reason:  "Override",
		Log:     LogSSHD,
		Pattern: `Failed password for (?P<account>\S+) from (?P<ip>\S+)`,
	})
	if err != nil {
		t.Fatalf("NewCustomRule: %v", err)
	}

	c := New(allEnabled(), zap.NewNop(), WithOverrides(staticRules{custom}))
	line := "host sshd[1]: Failed password for root from 203.0.113.7 port 22 ssh2"
	ev, ok := c.Classify(line, "/var/log/secure", testLogs())
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Rule != "ssh_override" || ev.Reason != "Override" {
		t.Errorf("override not used: rule=%q reason=%q", ev.Rule, ev.Reason)
	}

	// Lines the override does not match still reach the built-in table.
	line = "host sshd[1]: Invalid user oracle from 203.0.113.8 port 5555"
	ev, ok = c.Classify(line, "/var/log/secure", testLogs())
	if !ok || ev.Rule != "sshd_invalid_user" {
		t.Errorf("built-in fallback: ok=%v rule=%q", ok, ev.Rule)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := `rules:
  - name: app_login
    reason: Failed app login
    pattern: 'login failed user=(?P<account>\S+) ip=(?P<ip>\S+)'
  - name: broken
    pattern: '(unclosed'
  - name: no_ip
    pattern: 'nothing here'
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	o, err := NewOverrides(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOverrides: %v", err)
	}
	rules := o.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 valid rule, got %d", len(rules))
	}

	ev, v := rules[0].Match(Input{
		Line:   "login failed user=bob ip=203.0.113.30",
		Source: "/var/log/custom.log",
		Logs:   testLogs(),
	})
	if v != Hit {
		t.Fatalf("verdict = %v", v)
	}
	if ev.App != events.AppCustom || ev.Account != "bob" || ev.Address.String() != "203.0.113.30" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestNewOverridesMissingFile(t *testing.T) {
	o, err := NewOverrides(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(o.Rules()) != 0 {
		t.Error("expected empty table")
	}
}

func TestLogin(t *testing.T) {
	c := New(allEnabled(), zap.NewNop())
	logs := testLogs()

	tests := []struct {
		line    string
		app     events.App
		account string
		ip      string
	}{
		{"dovecot: pop3-login: Login: user=<bob>, method=PLAIN, rip=203.0.113.40, lip=198.51.100.1, mpid=1", events.AppPOP3D, "bob", "203.0.113.40"},
		{"dovecot: imap-login: Login: user=<alice>, method=PLAIN, rip=2001:db8::40, lip=2001:db8::1, mpid=1", events.AppIMAPD, "alice", "2001:db8::40"},
		{"imapd-ssl: LOGIN, user=carol, ip=[::ffff:203.0.113.41], port=[1234], protocol=IMAP", events.AppIMAPD, "carol", "203.0.113.41"},
	}
	for _, tt := range tests {
		got, ok := c.Login(tt.line, "/var/log/maillog", logs)
		if !ok {
			t.Errorf("no login for %q", tt.line)
			continue
		}
		if got.App != tt.app || got.Account != tt.account || got.Address.String() != tt.ip {
			t.Errorf("Login(%q) = %+v", tt.line, got)
		}
	}

	s := allEnabled()
	s.TrackLogins = false
	off := New(s, zap.NewNop())
	if _, ok := off.Login(tests[0].line, "/var/log/maillog", logs); ok {
		t.Error("login tracking disabled but event returned")
	}
}

func TestPrivilegedSession(t *testing.T) {
	c := New(allEnabled(), zap.NewNop())
	logs := testLogs()

	tests := []struct {
		line   string
		tool   string
		to     string
		from   string
		status string
	}{
		{"host su[1]: pam_unix(su:session): session opened for user root(uid=0) by alice(uid=1000)", "su", "root", "alice", SessionOpened},
		{"host su: pam_unix(su-l:session): session opened for user root by alice(uid=1000)", "su", "root", "alice", SessionOpened},
		{"host su: FAILED SU (to root) alice on pts/0", "su", "root", "alice", SessionFailed},
		{"host su: pam_unix(su:auth): authentication failure; logname=alice uid=1000 euid=0 tty=pts/0 ruser=alice rhost=  user=root", "su", "root", "alice", SessionFailed},
		{"host su[2]: Successful su for root by alice", "su", "root", "alice", SessionOpened},
		{"host sudo:    alice : 3 incorrect password attempts ; TTY=pts/0 ; PWD=/home/alice ; USER=root ; COMMAND=/bin/ls", "sudo", "root", "alice", SessionFailed},
		{"host sudo:    alice : TTY=pts/0 ; PWD=/home/alice ; USER=root ; COMMAND=/bin/ls", "sudo", "root", "alice", SessionOpened},
	}
	for _, tt := range tests {
		got, ok := c.PrivilegedSession(tt.line, "/var/log/secure", logs)
		if !ok {
			t.Errorf("no session for %q", tt.line)
			continue
		}
		if got.Tool != tt.tool || got.To != tt.to || got.From != tt.from || got.Status != tt.status {
			t.Errorf("PrivilegedSession(%q) = %+v", tt.line, got)
		}
	}
}

func TestPortScan(t *testing.T) {
	const tcpLine = "Oct 19 10:00:00 host kernel: [1.2] Firewall: *TCP_IN Blocked* IN=eth0 OUT= MAC=00:11:22:33:44:55 SRC=203.0.113.50 DST=198.51.100.1 LEN=44 TOS=0x00 PREC=0x00 TTL=50 ID=1 PROTO=TCP SPT=40000 DPT=23 WINDOW=1024 RES=0x00 SYN URGP=0"
	const openLine = "Oct 19 10:00:00 host kernel: Firewall: *TCP_IN Blocked* IN=eth0 OUT= MAC=00 SRC=203.0.113.50 DST=198.51.100.1 LEN=44 PROTO=TCP SPT=40000 DPT=22 WINDOW=1024"
	const icmpLine = "Oct 19 10:00:00 host kernel: Firewall: *ICMP_IN Blocked* IN=eth0 OUT= MAC=00 SRC=203.0.113.51 DST=198.51.100.1 LEN=84 PROTO=ICMP TYPE=8 CODE=0 ID=1 SEQ=1"
	const bcastLine = "Oct 19 10:00:00 host kernel: Firewall: *UDP_IN Blocked* IN=eth0 OUT= MAC=00 SRC=203.0.113.52 DST=198.51.100.255 LEN=84 PROTO=UDP SPT=137 DPT=137 LEN=64"
	const localLine = "Oct 19 10:00:00 host kernel: Firewall: *TCP_IN Blocked* IN=eth0 OUT= MAC=00 SRC=198.51.100.1 DST=198.51.100.1 LEN=44 PROTO=TCP SPT=1 DPT=23 WINDOW=1"

	snap := netsnap.New(map[string]string{"198.51.100.1": "eth0"}, "198.51.100.255")
	logs := testLogs()

	s := allEnabled()
	s.PortScanIgnoreOpen = true
	c := New(s, zap.NewNop())

	hit, ok := c.PortScan(tcpLine, "/var/log/messages", logs, snap)
	if !ok || hit.Address.String() != "203.0.113.50" || hit.Target() != "23" {
		t.Errorf("tcp hit = %+v ok=%v", hit, ok)
	}
	hit, ok = c.PortScan(icmpLine, "/var/log/messages", logs, snap)
	if !ok || hit.Target() != "ICMP" {
		t.Errorf("icmp hit = %+v ok=%v", hit, ok)
	}
	if _, ok := c.PortScan(openLine, "/var/log/messages", logs, snap); ok {
		t.Error("open port hit should be suppressed")
	}
	if _, ok := c.PortScan(bcastLine, "/var/log/messages", logs, snap); ok {
		t.Error("broadcast hit should be suppressed")
	}
	if _, ok := c.PortScan(localLine, "/var/log/messages", logs, snap); ok {
		t.Error("local source should be suppressed")
	}

	// A malformed port list only disables open-port suppression.
	s.TCPIn = "22,abc"
	broken := New(s, zap.NewNop())
	if _, ok := broken.PortScan(openLine, "/var/log/messages", logs, snap); !ok {
		t.Error("expected hit when tcp port list is unparseable")
	}
	if _, ok := broken.Classify("host sshd[1]: Failed password for root from 203.0.113.7 port 22 ssh2", "/var/log/secure", logs); !ok {
		t.Error("unrelated rules must keep working with a bad port list")
	}
}

func TestParsePorts(t *testing.T) {
	ports, err := ParsePorts("22, 80,2077:2079")
	if err != nil {
		t.Fatalf("ParsePorts: %v", err)
	}
	for _, p := range []int{22, 80, 2077, 2078, 2079} {
		if !ports[p] {
			t.Errorf("port %d missing", p)
		}
	}
	if len(ports) != 5 {
		t.Errorf("expected 5 ports, got %d", len(ports))
	}

	for _, bad := range []string{"abc", "70000", "10:5", "1:x"} {
		if _, err := ParsePorts(bad); err == nil {
			t.Errorf("ParsePorts(%q) expected error", bad)
		}
	}
}

func TestScanningFallsBackToPortScan(t *testing.T) {
	const tcpLine = "Oct 19 10:00:00 host kernel: [1.2] Firewall: *TCP_IN Blocked* IN=eth0 OUT= MAC=00:11:22:33:44:55 SRC=203.0.113.50 DST=198.51.100.1 LEN=44 TOS=0x00 PREC=0x00 TTL=50 ID=1 PROTO=TCP SPT=40000 DPT=23 WINDOW=1024 RES=0x00 SYN URGP=0"

	snaps := 0
	provider := netsnap.ProviderFunc(func() (*netsnap.Snapshot, error) {
		snaps++
		return netsnap.New(map[string]string{"198.51.100.1": "eth0"}, "198.51.100.255"), nil
	})
	s := Scanning{Classifier: New(allEnabled(), zap.NewNop()), Snapshots: provider}
	logs := testLogs()

	ev, ok := s.Classify(tcpLine, "/var/log/messages", logs)
	if !ok {
		t.Fatal("expected port-scan event")
	}
	if ev.App != events.AppPortScan || ev.Rule != "portscan" || ev.Reason != "Port scan (23)" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Address.String() != "203.0.113.50" || ev.Source != "/var/log/messages" || ev.Line != tcpLine {
		t.Errorf("event not stamped: %+v", ev)
	}

	// Rule matches never take a snapshot.
	before := snaps
	if _, ok := s.Classify("Oct 19 10:00:00 host sshd[1]: Failed password for root from 203.0.113.7 port 22 ssh2", "/var/log/secure", logs); !ok {
		t.Error("expected sshd event")
	}
	if snaps != before {
		t.Error("snapshot taken for a rule match")
	}

	if _, ok := (Scanning{Classifier: s.Classifier}).Classify(tcpLine, "/var/log/messages", logs); ok {
		t.Error("expected no event without a snapshot provider")
	}
}

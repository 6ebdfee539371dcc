package classify

import (
	"regexp"

	"github.com/rsclarke/ipsguard/internal/events"
)

const (
	sshd  = `sshd(?:\[\d+\])?: `
	inetd = `(?:\[\d+\])?:? `
	// client matches an apache "[client ip:port]" tag, port optional.
	client = `\[client (\S+?)(?::\d+)?\] `
)

// BuiltinRules returns the built-in rule table in priority order.
func BuiltinRules() []Rule {
	return []Rule{
		// sshd: the invalid-user form precedes the general failure form,
		// which would otherwise capture "invalid user foo" as the account.
		&patternRule{
			name: "sshd_failed_invalid_user", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `Failed (?:none|password|publickey|keyboard-interactive/pam) for invalid user (\S*) from (\S+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "sshd_failed", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `Failed (?:none|password|publickey|keyboard-interactive/pam) for (.*?) from (\S+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "sshd_invalid_user", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `(?:Invalid|Illegal) user (\S*) from (\S+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "sshd_pam_failure", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `pam_unix\(sshd:auth\): authentication failure;.*\brhost=(\S+)(?:\s+user=(\S*))?`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "sshd_not_allowed", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `User (\S*) from (\S+) not allowed because`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "sshd_max_auth", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `error: maximum authentication attempts exceeded for (?:invalid user )?(\S*) from (\S+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "sshd_preauth_closed", app: events.AppSSHD, log: LogSSHD,
			reason: "Failed SSH login",
			re:     regexp.MustCompile(sshd + `Connection closed by (?:authenticating|invalid) user (\S*) (\S+) port \d+ \[preauth\]`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "sshd_no_identification", app: events.AppSSHD, log: LogSSHD,
			reason: "SSH connection without identification",
			re:     regexp.MustCompile(sshd + `Did not receive identification string from (\S+)`),
			ip:     1,
		},

		// ftp
		&patternRule{
			name: "pureftpd_auth_failed", app: events.AppFTPD, log: LogFTPD,
			reason: "Failed FTP login",
			re:     regexp.MustCompile(`pure-ftpd` + inetd + `\(\?@(\S+)\) \[WARNING\] Authentication failed for user \[([^\]]*)\]`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "proftpd_login_failed", app: events.AppFTPD, log: LogFTPD,
			reason: "Failed FTP login",
			re:     regexp.MustCompile(`proftpd` + inetd + `\S+ \(\S*\[(\S+)\]\)[ -]+USER (\S+?):? (?:\(Login failed\)|no such user found)`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "vsftpd_fail_login", app: events.AppFTPD, log: LogFTPD,
			reason: "Failed FTP login",
			re:     regexp.MustCompile(`\[pid \d+\] \[([^\]]*)\] FAIL LOGIN: Client "([^"]+)"`),
			ip:     2, account: 1,
		},

		// pop3 / imap
		&patternRule{
			name: "dovecot_pop3_auth_failed", app: events.AppPOP3D, log: LogPOP3D,
			reason: "Failed POP3 login",
			re:     regexp.MustCompile(`dovecot(?:\[\d+\])?: pop3-login: (?:Aborted login|Disconnected) \(auth failed[^)]*\): user=<([^>]*)>,.*?\brip=([^,\s]+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "courier_pop3_login_failed", app: events.AppPOP3D, log: LogPOP3D,
			reason: "Failed POP3 login",
			re:     regexp.MustCompile(`pop3d(?:-ssl)?: LOGIN FAILED, user=([^,]*), ip=\[([^\]]+)\]`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "dovecot_imap_auth_failed", app: events.AppIMAPD, log: LogIMAPD,
			reason: "Failed IMAP login",
			re:     regexp.MustCompile(`dovecot(?:\[\d+\])?: imap-login: (?:Aborted login|Disconnected) \(auth failed[^)]*\): user=<([^>]*)>,.*?\brip=([^,\s]+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "courier_imap_login_failed", app: events.AppIMAPD, log: LogIMAPD,
			reason: "Failed IMAP login",
			re:     regexp.MustCompile(`imapd(?:-ssl)?: LOGIN FAILED, user=([^,]*), ip=\[([^\]]+)\]`),
			ip:     2, account: 1,
		},

		// web
		&patternRule{
			name: "apache_user_not_found", app: events.AppHtpasswd, log: LogHtaccess,
			reason: "Failed web page login",
			re:     regexp.MustCompile(client + `(?:AH01618: )?user (\S+) not found`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "apache_password_mismatch", app: events.AppHtpasswd, log: LogHtaccess,
			reason: "Failed web page login",
			re:     regexp.MustCompile(client + `(?:AH01617: )?user (\S+): authentication failure for "[^"]*": Password Mismatch`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "modsecurity_access_denied", app: events.AppModSecurity, log: LogModSec,
			reason: "ModSecurity triggered",
			re:     regexp.MustCompile(client + `(?:\[client \S+\] )?ModSecurity: Access denied`),
			ip:     1,
		},
		&patternRule{
			name: "suhosin_alert", app: events.AppSuhosin, log: LogSuhosin,
			reason: "Suhosin alert",
			re:     regexp.MustCompile(`suhosin(?:\[\d+\])?: ALERT - .*\(attacker '([^']+)', file`),
			ip:     1,
		},

		// dns
		&patternRule{
			name: "bind_query_denied", app: events.AppBind, log: LogBind,
			reason: "Denied DNS query",
			re:     regexp.MustCompile(`named(?:\[\d+\])?: client (?:@0x[0-9a-f]+ )?(\S+?)#\d+(?: \([^)]*\))?: (?:view \S+: )?query (?:\(cache\) )?'[^']*' denied`),
			ip:     1,
		},

		// control panels
		&patternRule{
			name: "cpanel_failed_login", app: events.AppCPanel, log: LogCPanel,
			reason: "Failed cPanel login",
			re:     regexp.MustCompile(`^(\S+) - (\S+) \[[^\]]+\] "[^"]*" FAILED LOGIN \S+:`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "webmin_invalid_login", app: events.AppWebmin, log: LogWebmin,
			reason: "Failed Webmin login",
			re:     regexp.MustCompile(`webmin(?:\[\d+\])?: (?:Invalid|Non-existent) login as (\S+) from (\S+)`),
			ip:     2, account: 1,
		},
		&patternRule{
			name: "directadmin_failed_login", app: events.AppDirectAdmin, log: LogDirectAdmin,
			reason: "Failed DirectAdmin login",
			re:     regexp.MustCompile(`'(\S+)' \d+ failed login attempts?\. Account '([^']*)'`),
			ip:     1, account: 2,
		},

		// smtp auth
		&patternRule{
			name: "exim_auth_failed", app: events.AppSMTPAuth, log: LogSMTPAuth,
			reason: "Failed SMTP AUTH login",
			re:     regexp.MustCompile(`authenticator failed for .*?\[(\S+?)\](?::\d+)?: 535 Incorrect authentication data(?: \(set_id=([^)]+)\))?`),
			ip:     1, account: 2,
		},
		&patternRule{
			name: "postfix_sasl_failed", app: events.AppSMTPAuth, log: LogSMTPAuth,
			reason: "Failed SMTP AUTH login",
			re:     regexp.MustCompile(`postfix/(?:submission/)?smtpd\[\d+\]: warning: \S*?\[(\S+)\]: SASL (?:LOGIN|PLAIN|CRAM-MD5) authentication failed`),
			ip:     1,
		},

		// databases
		&patternRule{
			name: "mysql_access_denied", app: events.AppMySQL, log: LogMySQL,
			reason: "Failed MySQL login",
			re:     regexp.MustCompile(`Access denied for user '([^']*)'@'([^']+)' \(using password`),
			ip:     2, account: 1,
		},
	}
}

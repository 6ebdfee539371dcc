// Package events defines the core types passed between the classifier,
// the enrichment stage and the enforcement plugins.
package events

import (
	"time"

	"github.com/rsclarke/ipsguard/internal/addr"
)

// App identifies the service a security event was detected in.
type App string

// Applications recognised by the classifier.
const (
	AppSSHD        App = "sshd"
	AppFTPD        App = "ftpd"
	AppPOP3D       App = "pop3d"
	AppIMAPD       App = "imapd"
	AppHtpasswd    App = "htpasswd"
	AppModSecurity App = "modsecurity"
	AppBind        App = "bind"
	AppCPanel      App = "cpanel"
	AppSMTPAuth    App = "smtpauth"
	AppWebmin      App = "webmin"
	AppSuhosin     App = "suhosin"
	AppMySQL       App = "mysql"
	AppDirectAdmin App = "directadmin"
	AppPortScan    App = "portscan"
	AppCustom      App = "custom"
)

// Apps lists every built-in application in a stable order.
var Apps = []App{
	AppSSHD, AppFTPD, AppPOP3D, AppIMAPD, AppHtpasswd, AppModSecurity,
	AppBind, AppCPanel, AppSMTPAuth, AppWebmin, AppSuhosin, AppMySQL,
	AppDirectAdmin, AppPortScan,
}

// SecurityEvent is a single offending log line reduced to its payload.
type SecurityEvent struct {
	// ID is the stored row id, zero until persisted.
	ID      int64
	Address addr.Address
	Account string
	App     App
	Reason  string
	Rule    string
	Source  string
	Line    string
	// OccurredAt is the time the line was classified.
	OccurredAt time.Time
}

// BanReason explains why an address was banned.
type BanReason string

// Ban reasons.
const (
	BanTrigger    BanReason = "trigger"
	BanReputation BanReason = "reputation"
)

// Ban is raised once an address crosses its trigger or is found listed.
type Ban struct {
	ID      int64
	Address addr.Address
	App     App
	Reason  BanReason
	// Count is the number of events seen for the address when the ban fired.
	Count    int
	RBLHit   string
	Event    *SecurityEvent
	BannedAt time.Time
	// Reputation is set when the address was enriched before the ban.
	Reputation *Reputation
}

// Reputation is the enrichment gathered for a banned address.
type Reputation struct {
	CountryCode string
	CountryName string
	Region      string
	City        string
	ASN         uint32
	ASNOrg      string
	Hostname    string
	// RBLExplanations holds the TXT records of the listing, in answer order.
	RBLExplanations []string
}

// Termination describes a process killed because it held a socket of a
// banned address.
type Termination struct {
	PID     int
	Exe     string
	Inode   uint64
	Address string
}

// Package models defines the database entity types.
package models

// SecurityEvent is a persisted classifier match.
type SecurityEvent struct {
	ID         int64
	Address    string
	App        string
	Account    string
	Reason     string
	Rule       string
	Source     string
	Line       string
	OccurredAt int64
}

// Ban is a persisted ban decision.
type Ban struct {
	ID       int64
	Address  string
	App      string
	Reason   string
	Count    int
	RBLHit   string
	EventID  *int64
	BannedAt int64
}

// Termination records a process killed for a banned address.
type Termination struct {
	ID       int64
	BanID    *int64
	Address  string
	PID      int
	Exe      string
	Inode    uint64
	KilledAt int64
}

// EventFilter narrows ListEvents. Zero fields match everything.
type EventFilter struct {
	Address string
	App     string
	Since   int64
	Limit   int
}

// Reputation is the enrichment recorded with a ban.
type Reputation struct {
	BanID           int64
	CountryCode     string
	CountryName     string
	Region          string
	City            string
	ASN             uint32
	ASNOrg          string
	Hostname        string
	RBLExplanations []string
}

// Package types defines the JSON documents printed by the command line.
package types

// EventInfo is a recorded security event.
type EventInfo struct {
	ID         int64  `json:"id"`
	Address    string `json:"address"`
	App        string `json:"app"`
	Account    string `json:"account,omitempty"`
	Reason     string `json:"reason"`
	Rule       string `json:"rule"`
	Source     string `json:"source"`
	OccurredAt string `json:"occurred_at"`
}

// ListEventsResponse lists recorded events, newest first.
type ListEventsResponse struct {
	Events []EventInfo `json:"events"`
}

// BanInfo is a recorded ban decision.
type BanInfo struct {
	ID       int64  `json:"id"`
	Address  string `json:"address"`
	App      string `json:"app"`
	Reason   string `json:"reason"`
	Count    int    `json:"count"`
	RBLHit   string `json:"rbl_hit,omitempty"`
	EventID  *int64 `json:"event_id"`
	BannedAt string `json:"banned_at"`
	// Reputation is the enrichment recorded with the ban.
	Reputation *BanReputation `json:"reputation,omitempty"`
}

// BanReputation is the enrichment stored for a ban.
type BanReputation struct {
	CountryCode     string   `json:"country_code,omitempty"`
	CountryName     string   `json:"country_name,omitempty"`
	Region          string   `json:"region,omitempty"`
	City            string   `json:"city,omitempty"`
	ASN             uint32   `json:"asn,omitempty"`
	ASNOrg          string   `json:"asn_org,omitempty"`
	Hostname        string   `json:"hostname,omitempty"`
	RBLExplanations []string `json:"rbl_explanations,omitempty"`
}

// ListBansResponse lists recorded bans, newest first.
type ListBansResponse struct {
	Bans []BanInfo `json:"bans"`
}

// TerminationInfo is a process killed for a banned address.
type TerminationInfo struct {
	ID       int64  `json:"id"`
	BanID    *int64 `json:"ban_id"`
	Address  string `json:"address"`
	PID      int    `json:"pid"`
	Exe      string `json:"exe"`
	Inode    uint64 `json:"inode"`
	KilledAt string `json:"killed_at"`
}

// ListTerminationsResponse lists recorded terminations, newest first.
type ListTerminationsResponse struct {
	Terminations []TerminationInfo `json:"terminations"`
}

// ReputationResponse is the result of an address lookup.
type ReputationResponse struct {
	Address         string      `json:"address"`
	Class           string      `json:"class"`
	CountryCode     string      `json:"country_code,omitempty"`
	CountryName     string      `json:"country_name,omitempty"`
	Region          string      `json:"region,omitempty"`
	City            string      `json:"city,omitempty"`
	ASN             uint32      `json:"asn,omitempty"`
	ASNOrg          string      `json:"asn_org,omitempty"`
	Hostname        string      `json:"hostname,omitempty"`
	RBLHit          string      `json:"rbl_hit,omitempty"`
	RBLExplanations []string    `json:"rbl_explanations,omitempty"`
	RBLResults      []RBLResult `json:"rbl_results,omitempty"`
}

// RBLResult is the outcome of one blocklist zone.
type RBLResult struct {
	Zone         string   `json:"zone"`
	Hit          string   `json:"hit,omitempty"`
	Explanations []string `json:"explanations,omitempty"`
	Cached       bool     `json:"cached"`
}

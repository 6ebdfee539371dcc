package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/models"
	"github.com/rsclarke/ipsguard/internal/rbl"
	"github.com/rsclarke/ipsguard/internal/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rfc3339(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

func eventInfo(e models.SecurityEvent) types.EventInfo {
	return types.EventInfo{
		ID:         e.ID,
		Address:    e.Address,
		App:        e.App,
		Account:    e.Account,
		Reason:     e.Reason,
		Rule:       e.Rule,
		Source:     e.Source,
		OccurredAt: rfc3339(e.OccurredAt),
	}
}

func banInfo(b models.Ban) types.BanInfo {
	return types.BanInfo{
		ID:       b.ID,
		Address:  b.Address,
		App:      b.App,
		Reason:   b.Reason,
		Count:    b.Count,
		RBLHit:   b.RBLHit,
		EventID:  b.EventID,
		BannedAt: rfc3339(b.BannedAt),
	}
}

func banReputation(r models.Reputation) *types.BanReputation {
	return &types.BanReputation{
		CountryCode:     r.CountryCode,
		CountryName:     r.CountryName,
		Region:          r.Region,
		City:            r.City,
		ASN:             r.ASN,
		ASNOrg:          r.ASNOrg,
		Hostname:        r.Hostname,
		RBLExplanations: r.RBLExplanations,
	}
}

func terminationInfo(t models.Termination) types.TerminationInfo {
	return types.TerminationInfo{
		ID:       t.ID,
		BanID:    t.BanID,
		Address:  t.Address,
		PID:      t.PID,
		Exe:      t.Exe,
		Inode:    t.Inode,
		KilledAt: rfc3339(t.KilledAt),
	}
}

func rblResults(results []rbl.Result) []types.RBLResult {
	out := make([]types.RBLResult, 0, len(results))
	for _, r := range results {
		out = append(out, types.RBLResult{
			Zone:         r.Zone.Name,
			Hit:          r.Hit,
			Explanations: r.Explanations,
			Cached:       r.Cached,
		})
	}
	return out
}

func reputation(a addr.Address, rec enrich.Record) types.ReputationResponse {
	resp := types.ReputationResponse{
		Address:         rec.Address,
		Class:           string(a.Class),
		CountryCode:     rec.CountryCode,
		CountryName:     rec.CountryName,
		Region:          rec.Region,
		City:            rec.City,
		ASN:             rec.ASN,
		ASNOrg:          rec.ASNOrg,
		Hostname:        rec.Hostname,
		RBLHit:          rec.RBLHit,
		RBLExplanations: rec.RBLExplanations,
	}
	if len(rec.RBLResults) > 0 {
		resp.RBLResults = rblResults(rec.RBLResults)
	}
	return resp
}

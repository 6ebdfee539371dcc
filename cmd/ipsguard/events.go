package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsclarke/ipsguard/internal/db"
	"github.com/rsclarke/ipsguard/internal/models"
	"github.com/rsclarke/ipsguard/internal/types"
)

var eventsFlags struct {
	address      string
	app          string
	since        time.Duration
	limit        int
	bans         bool
	terminations bool
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded security events, bans and terminations",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsFlags.address, "addr", "", "only show this address")
	eventsCmd.Flags().StringVar(&eventsFlags.app, "app", "", "only show events of this app")
	eventsCmd.Flags().DurationVar(&eventsFlags.since, "since", 0, "only show events younger than this")
	eventsCmd.Flags().IntVar(&eventsFlags.limit, "limit", getEnvInt("IPSGUARD_EVENTS_LIMIT", 50), "maximum rows to show, 0 for all")
	eventsCmd.Flags().BoolVar(&eventsFlags.bans, "bans", false, "list bans instead of events")
	eventsCmd.Flags().BoolVar(&eventsFlags.terminations, "terminations", false, "list terminated processes instead of events")
}

func runEvents(cmd *cobra.Command, args []string) error {
	database, err := db.Open(cfg.String("db.path"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	switch {
	case eventsFlags.bans:
		bans, err := db.ListBans(database, eventsFlags.limit)
		if err != nil {
			return fmt.Errorf("list bans: %w", err)
		}
		if eventsFlags.address != "" {
			bans = filterBans(bans, eventsFlags.address)
		}
		if rootFlags.json {
			resp := types.ListBansResponse{Bans: make([]types.BanInfo, 0, len(bans))}
			for _, b := range bans {
				info := banInfo(b)
				rep, ok, err := db.GetReputation(database, b.ID)
				if err != nil {
					return err
				}
				if ok {
					info.Reputation = banReputation(rep)
				}
				resp.Bans = append(resp.Bans, info)
			}
			return writeJSON(out, resp)
		}
		if len(bans) == 0 {
			fmt.Fprintln(out, "No bans found.")
			return nil
		}
		fmt.Fprintf(out, "%-19s  %-39s  %-12s  %-10s  %-5s  %s\n", "TIME", "ADDRESS", "APP", "REASON", "COUNT", "RBL")
		for _, b := range bans {
			hit := b.RBLHit
			if hit == "" {
				hit = "-"
			}
			fmt.Fprintf(out, "%-19s  %-39s  %-12s  %-10s  %-5d  %s\n", timeStr(b.BannedAt), b.Address, b.App, b.Reason, b.Count, hit)
		}

	case eventsFlags.terminations:
		terms, err := db.ListTerminations(database, eventsFlags.address)
		if err != nil {
			return fmt.Errorf("list terminations: %w", err)
		}
		if rootFlags.json {
			resp := types.ListTerminationsResponse{Terminations: make([]types.TerminationInfo, 0, len(terms))}
			for _, t := range terms {
				resp.Terminations = append(resp.Terminations, terminationInfo(t))
			}
			return writeJSON(out, resp)
		}
		if len(terms) == 0 {
			fmt.Fprintln(out, "No terminations found.")
			return nil
		}
		fmt.Fprintf(out, "%-19s  %-39s  %-7s  %s\n", "TIME", "ADDRESS", "PID", "EXE")
		for _, t := range terms {
			fmt.Fprintf(out, "%-19s  %-39s  %-7d  %s\n", timeStr(t.KilledAt), t.Address, t.PID, t.Exe)
		}

	default:
		f := models.EventFilter{
			Address: eventsFlags.address,
			App:     eventsFlags.app,
			Limit:   eventsFlags.limit,
		}
		if eventsFlags.since > 0 {
			f.Since = time.Now().Add(-eventsFlags.since).Unix()
		}
		evs, err := db.ListEvents(database, f)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if rootFlags.json {
			resp := types.ListEventsResponse{Events: make([]types.EventInfo, 0, len(evs))}
			for _, e := range evs {
				resp.Events = append(resp.Events, eventInfo(e))
			}
			return writeJSON(out, resp)
		}
		if len(evs) == 0 {
			fmt.Fprintln(out, "No events found.")
			return nil
		}
		fmt.Fprintf(out, "%-19s  %-39s  %-12s  %-16s  %s\n", "TIME", "ADDRESS", "APP", "ACCOUNT", "REASON")
		for _, e := range evs {
			account := e.Account
			if account == "" {
				account = "-"
			}
			fmt.Fprintf(out, "%-19s  %-39s  %-12s  %-16s  %s\n", timeStr(e.OccurredAt), e.Address, e.App, account, e.Reason)
		}
	}
	return nil
}

func filterBans(bans []models.Ban, address string) []models.Ban {
	var out []models.Ban
	for _, b := range bans {
		if b.Address == address {
			out = append(out, b)
		}
	}
	return out
}

func timeStr(unix int64) string {
	return time.Unix(unix, 0).Format("2006-01-02 15:04:05")
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/rbl"
)

var lookupFlags struct {
	mode  string
	force bool
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <address>",
	Short: "Show the reputation of an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

var rblFlags struct {
	force bool
}

var rblCmd = &cobra.Command{
	Use:   "rbl <address>",
	Short: "Query every configured blocklist for an address",
	Long: `Query every configured blocklist zone for an address and print the
result per zone. Cached results are used unless --force is given, which
queries again and replaces the cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runRBL,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(rblCmd)

	lookupCmd.Flags().StringVar(&lookupFlags.mode, "mode", "full", "lookup depth: country, full or rbl")
	lookupCmd.Flags().BoolVar(&lookupFlags.force, "force", false, "bypass the blocklist cache")
	rblCmd.Flags().BoolVar(&rblFlags.force, "force", false, "bypass and replace the cached result")
}

func runLookup(cmd *cobra.Command, args []string) error {
	a, err := addr.Validate(args[0], false)
	if err != nil {
		return err
	}
	mode, err := enrich.ParseMode(lookupFlags.mode)
	if err != nil {
		return err
	}
	e, closeGeo, err := newEnricher()
	if err != nil {
		return err
	}
	defer closeGeo()

	rec := e.Enrich(cmd.Context(), a, mode, enrich.Options{Force: lookupFlags.force})
	out := cmd.OutOrStdout()
	if rootFlags.json {
		return writeJSON(out, reputation(a, rec))
	}
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(out, "%-10s %s\n", k+":", v)
		}
	}
	row("address", rec.Address)
	row("class", string(a.Class))
	row("country", strings.TrimSpace(rec.CountryCode+" "+rec.CountryName))
	row("region", rec.Region)
	row("city", rec.City)
	if rec.ASN != 0 {
		row("asn", fmt.Sprintf("AS%d %s", rec.ASN, rec.ASNOrg))
	}
	row("hostname", rec.Hostname)
	if mode >= enrich.ModeRBL {
		switch {
		case rec.Listed():
			row("rbl", rec.RBLHit)
			for _, x := range rec.RBLExplanations {
				fmt.Fprintf(out, "%-10s %s\n", "", x)
			}
		case rec.RBLHit == rbl.Timeout:
			row("rbl", "timeout")
		default:
			row("rbl", "not listed")
		}
	}
	return nil
}

func runRBL(cmd *cobra.Command, args []string) error {
	a, err := addr.Validate(args[0], true)
	if err != nil {
		return err
	}
	e, closeGeo, err := newEnricher()
	if err != nil {
		return err
	}
	defer closeGeo()

	results, err := e.RBL.Report(cmd.Context(), a, rblFlags.force)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if rootFlags.json {
		return writeJSON(out, rblResults(results))
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No blocklists checked.")
		return nil
	}
	fmt.Fprintf(out, "%-28s  %-16s  %-6s  %s\n", "ZONE", "RESULT", "CACHED", "EXPLANATION")
	for _, r := range results {
		result := r.Hit
		switch {
		case result == "":
			result = "-"
		case result == rbl.Timeout:
			result = "timeout"
		}
		fmt.Fprintf(out, "%-28s  %-16s  %-6t  %s\n", r.Zone.Name, result, r.Cached, strings.Join(r.Explanations, " "))
	}
	return nil
}

package main

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/db"
	"github.com/rsclarke/ipsguard/internal/enforce"
	"github.com/rsclarke/ipsguard/internal/plugins/core/storage"
)

var killFlags struct {
	ports  []int
	daemon string
	record bool
}

var killCmd = &cobra.Command{
	Use:   "kill <address>",
	Short: "Terminate the live sessions of an address",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

var listeningCmd = &cobra.Command{
	Use:   "listening",
	Short: "List listening sockets and the processes holding them",
	Args:  cobra.NoArgs,
	RunE:  runListening,
}

func init() {
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(listeningCmd)

	killCmd.Flags().IntSliceVar(&killFlags.ports, "port", []int{22}, "local ports whose sessions are terminated")
	killCmd.Flags().StringVar(&killFlags.daemon, "daemon", enforce.DefaultDaemon, "executable name a killed process must carry")
	killCmd.Flags().BoolVar(&killFlags.record, "record", true, "record the terminations in the database")
}

func runKill(cmd *cobra.Command, args []string) error {
	a, err := addr.Validate(args[0], false)
	if err != nil {
		return err
	}
	auditLog := openAudit()
	if auditLog != nil {
		defer auditLog.Close()
	}

	killed := newEnforcer(auditLog).TerminateSessions(a, killFlags.daemon, killFlags.ports)
	out := cmd.OutOrStdout()
	if len(killed) == 0 {
		fmt.Fprintf(out, "No sessions from %s.\n", a)
		return nil
	}
	for _, t := range killed {
		fmt.Fprintf(out, "killed pid %d (%s)\n", t.PID, t.Exe)
	}

	if !killFlags.record {
		return nil
	}
	database, err := db.Open(cfg.String("db.path"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	store := storage.New(database, 0)
	for _, t := range killed {
		if err := store.CreateTermination(cmd.Context(), 0, t); err != nil {
			return err
		}
	}
	return nil
}

func runListening(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-5s  %-46s  %-7s  %s\n", "PROTO", "LOCAL", "PID", "EXE")
	for _, l := range enforce.Listening(cfg.String("enforce.proc_root")) {
		local := netip.AddrPortFrom(l.LocalAddress, uint16(l.LocalPort)).String()
		pid := "-"
		if l.PID > 0 {
			pid = strconv.Itoa(l.PID)
		}
		exe := l.Exe
		if exe == "" {
			exe = "-"
		}
		fmt.Fprintf(out, "%-5s  %-46s  %-7s  %s\n", l.Protocol, local, pid, exe)
	}
	return nil
}

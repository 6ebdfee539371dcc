package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var classifyFlags struct {
	source   string
	logins   bool
	sessions bool
}

var classifyCmd = &cobra.Command{
	Use:   "classify [file...]",
	Short: "Classify log lines without banning",
	Long: `Classify every line of the given files, or of standard input, and print
the security events found. Lines read from a file are classified as coming
from that file; standard input uses --source.`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&classifyFlags.source, "source", "/var/log/secure", "log file standard input is read as")
	classifyCmd.Flags().BoolVar(&classifyFlags.logins, "logins", false, "also print successful POP3/IMAP logins")
	classifyCmd.Flags().BoolVar(&classifyFlags.sessions, "sessions", false, "also print su and sudo sessions")
}

func runClassify(cmd *cobra.Command, args []string) error {
	if classifyFlags.logins {
		cfg.Set("track.logins", true)
	}
	if classifyFlags.sessions {
		cfg.Set("track.su", true)
		cfg.Set("track.sudo", true)
	}
	c, _, err := newClassifier()
	if err != nil {
		return err
	}
	logs := cfg.LogSets()
	out := cmd.OutOrStdout()

	scan := func(r io.Reader, source string) error {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if ev, ok := c.Classify(line, source, logs); ok {
				fmt.Fprintf(out, "%-12s  %-39s  %-16s  %s\n", ev.App, ev.Address, ev.Account, ev.Reason)
				continue
			}
			if classifyFlags.logins {
				if l, ok := c.Login(line, source, logs); ok {
					fmt.Fprintf(out, "%-12s  %-39s  %-16s  login\n", l.App, l.Address, l.Account)
					continue
				}
			}
			if classifyFlags.sessions {
				if s, ok := c.PrivilegedSession(line, source, logs); ok {
					fmt.Fprintf(out, "%-12s  %-39s  %-16s  %s to %s\n", s.Tool, "-", s.From, s.Status, s.To)
				}
			}
		}
		return sc.Err()
	}

	if len(args) == 0 {
		return scan(cmd.InOrStdin(), classifyFlags.source)
	}
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = scan(f, path)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}
	return nil
}

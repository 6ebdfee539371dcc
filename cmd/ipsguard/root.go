package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/config"
	"github.com/rsclarke/ipsguard/internal/logging"
)

var (
	logger *zap.Logger
	cfg    *config.Provider
)

var rootFlags struct {
	configFile string
	json       bool
}

var rootCmd = &cobra.Command{
	Use:   "ipsguard",
	Short: "Host intrusion prevention core",
	Long: `ipsguard watches service logs for authentication failures and other
security events, looks up the reputation of the offending addresses and
terminates the live sessions of banned addresses.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		cfg, err = config.Load(rootFlags.configFile)
		if err != nil {
			return err
		}
		if f := cfg.File(); f != "" {
			logger.Debug("configuration loaded", logging.File(f))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configFile, "config", getEnv("IPSGUARD_CONFIG", ""), "configuration file (default "+config.DefaultFile+")")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.json, "json", false, "print results as JSON")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rsclarke/ipsguard/internal/db"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/plugins"
	coreaudit "github.com/rsclarke/ipsguard/internal/plugins/core/audit"
	coreenforce "github.com/rsclarke/ipsguard/internal/plugins/core/enforce"
	"github.com/rsclarke/ipsguard/internal/plugins/core/storage"
	"github.com/rsclarke/ipsguard/internal/server"
	"github.com/rsclarke/ipsguard/internal/tail"
)

var watchFlags struct {
	fromStart bool
	poll      time.Duration
	dryRun    bool
	metrics   string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the configured logs and ban offending addresses",
	Long: `Follow every configured log file, classify each new line and ban
addresses that reach their failure trigger or are listed by a blocklist.
Banned addresses have their live sessions terminated.

The ban itself is applied by bans.command, with "{addr}", "{app}" and
"{reason}" substituted. Without a command, or with --dry-run, bans are
only logged.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchFlags.fromStart, "from-start", false, "read existing log content instead of only new lines")
	watchCmd.Flags().DurationVar(&watchFlags.poll, "poll", tail.DefaultPoll, "log polling interval")
	watchCmd.Flags().BoolVar(&watchFlags.dryRun, "dry-run", false, "log bans instead of running the ban command")
	watchCmd.Flags().StringVar(&watchFlags.metrics, "metrics-addr", getEnv("IPSGUARD_METRICS_ADDR", ""), "address to serve metrics on (overrides metrics.addr)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.String("db.path"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	classifier, overrides, err := newClassifier()
	if err != nil {
		return err
	}
	if overrides != nil {
		if err := overrides.Watch(ctx); err != nil {
			logger.Warn("custom rule reload disabled", zap.Error(err))
		}
	}

	enricher, closeGeo, err := newEnricher()
	if err != nil {
		return err
	}
	defer closeGeo()

	mode, err := enrich.ParseMode(cfg.String("enrich.mode"))
	if err != nil {
		return err
	}
	ports, err := cfg.EnforcePorts()
	if err != nil {
		return err
	}
	daemons, err := cfg.EnforceDaemons()
	if err != nil {
		return err
	}

	auditLog := openAudit()
	if auditLog != nil {
		defer auditLog.Close()
	}

	pipeline := plugins.NewPipeline(logger.Named("pipeline"))
	store := storage.New(database, cfg.Duration("bans.ttl"))
	pipeline.SetStore(store)
	pipeline.Register(store)
	pipeline.Register(coreenforce.New(newEnforcer(auditLog), coreenforce.Targets(ports, daemons)))
	if auditLog != nil {
		pipeline.Register(coreaudit.New(auditLog))
	}
	pipeline.SetClassifier(classifier, cfg.LogSets(), classifier.Settings())
	pipeline.SetEnricher(enricher, mode)
	pipeline.SetBanner(newBanner())
	pipeline.SetTracker(plugins.NewTracker(
		cfg.Int("bans.tracker_size"),
		cfg.Duration("bans.interval"),
		cfg.Duration("bans.ttl"),
	))
	if err := pipeline.Init(cfg); err != nil {
		return err
	}
	for _, info := range pipeline.ListPlugins() {
		logger.Debug("plugin registered", zap.String("plugin", info.ID), zap.String("type", string(info.Type)))
	}

	cfg.Watch(func() {
		logger.Info("configuration file changed, restart to apply", logging.File(cfg.File()))
	})

	metricsAddr := watchFlags.metrics
	if metricsAddr == "" {
		metricsAddr = cfg.String("metrics.addr")
	}
	if metricsAddr != "" {
		srv := server.NewMetricsServer(metricsAddr, logger.Named("metrics"))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	files := cfg.LogFiles()
	if len(files) == 0 {
		return errors.New("no log files configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan tail.Line, 256)
	for _, path := range files {
		f := &tail.Follower{
			Path:      path,
			FromStart: watchFlags.fromStart,
			Poll:      watchFlags.poll,
			Logger:    logger.Named("tail"),
		}
		g.Go(func() error {
			if err := f.Follow(gctx, lines); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("follow %s: %w", f.Path, err)
			}
			return nil
		})
	}
	if retention := cfg.Duration("db.retention"); retention > 0 {
		g.Go(func() error {
			pruneLoop(gctx, database, retention)
			return nil
		})
	}
	g.Go(func() error {
		consume(gctx, lines, pipeline)
		return nil
	})

	logger.Info("watching logs", zap.Strings("files", files), zap.Int("pid", os.Getpid()))
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// consume feeds tailed lines to the pipeline until ctx is done. The
// pipeline logs its own bans.
func consume(ctx context.Context, lines <-chan tail.Line, pipeline *plugins.Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-lines:
			if _, err := pipeline.ProcessLine(ctx, l.Text, l.Path); err != nil {
				logger.Error("line processing failed", logging.Source(l.Path), zap.Error(err))
			}
		}
	}
}

// pruneLoop deletes history older than retention now and then hourly.
func pruneLoop(ctx context.Context, database *sql.DB, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		events, bans, err := db.Prune(database, time.Now().Add(-retention).Unix())
		if err != nil {
			logger.Warn("history pruning failed", zap.Error(err))
		} else if events+bans > 0 {
			logger.Info("history pruned", zap.Int64("events", events), zap.Int64("bans", bans))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newBanner() plugins.Banner {
	command := cfg.Strings("bans.command")
	if watchFlags.dryRun || len(command) == 0 {
		return &plugins.LogBanner{Logger: logger.Named("ban")}
	}
	return &plugins.CommandBanner{Command: command, Logger: logger.Named("ban")}
}

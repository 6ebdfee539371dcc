// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("service", "ipsguard"))

	return logger, nil
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("IPSGUARD_LOG_LEVEL", "info"),
		Format: getenv("IPSGUARD_LOG_FORMAT", "json"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Addr returns a zap field for an address.
func Addr(addr string) zap.Field { return zap.String("addr", addr) }

// App returns a zap field for an application name.
func App(app string) zap.Field { return zap.String("app", app) }

// Account returns a zap field for an account name.
func Account(account string) zap.Field { return zap.String("account", account) }

// Rule returns a zap field for a classifier rule name.
func Rule(name string) zap.Field { return zap.String("rule", name) }

// Source returns a zap field for a log file path.
func Source(path string) zap.Field { return zap.String("source", path) }

// Zone returns a zap field for an RBL zone.
func Zone(zone string) zap.Field { return zap.String("zone", zone) }

// PID returns a zap field for a process id.
func PID(pid int) zap.Field { return zap.Int("pid", pid) }

// Inode returns a zap field for a socket inode.
func Inode(inode uint64) zap.Field { return zap.Uint64("inode", inode) }

// File returns a zap field for a file path.
func File(path string) zap.Field { return zap.String("file", path) }

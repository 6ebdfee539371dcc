// Package audit writes the single-line, timestamped, process-tagged audit
// trail of kills and rule matches.
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the audit file and its rotation.
type Config struct {
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	// Tag prefixes every line, followed by the process id. Defaults to the
	// executable name.
	Tag string
}

// DefaultConfig returns the rotation defaults for file.
func DefaultConfig(file string) Config {
	return Config{File: file, MaxSize: 50, MaxBackups: 5, MaxAge: 90, Compress: true}
}

// Logger is the audit sink.
type Logger struct {
	z      *zap.Logger
	prefix string
	closer io.Closer
}

// New opens the rotated audit file described by cfg.
func New(cfg Config) (*Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("audit file not configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	l := newLogger(zapcore.AddSync(rotator), cfg.Tag)
	l.closer = rotator
	return l, nil
}

// NewWriter returns a Logger writing to w.
func NewWriter(w io.Writer, tag string) *Logger {
	return newLogger(zapcore.AddSync(w), tag)
}

func newLogger(ws zapcore.WriteSyncer, tag string) *Logger {
	if tag == "" {
		tag = filepath.Base(os.Args[0])
	}
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(time.Stamp),
		ConsoleSeparator: " ",
	})
	return &Logger{
		z:      zap.New(zapcore.NewCore(enc, ws, zapcore.InfoLevel)),
		prefix: fmt.Sprintf("%s[%d]: ", tag, os.Getpid()),
	}
}

// Log writes msg as one audit line.
func (l *Logger) Log(msg string) {
	l.z.Info(l.prefix + msg)
}

// Close flushes and closes the audit file.
func (l *Logger) Close() error {
	_ = l.z.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

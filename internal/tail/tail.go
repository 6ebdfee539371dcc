// Package tail follows growing log files across truncation and rotation.
package tail

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/logging"
)

// DefaultPoll is how often a file at EOF is checked for new data.
const DefaultPoll = 500 * time.Millisecond

// Line is one complete line read from Path.
type Line struct {
	Path string
	Text string
}

// Follower reads lines appended to a file.
type Follower struct {
	Path string
	// FromStart reads the existing content instead of starting at the end.
	FromStart bool
	Poll      time.Duration
	Logger    *zap.Logger
}

// Follow sends every new line to out until ctx is done. A file that does
// not exist yet is waited for. Truncation restarts at offset zero and a
// replaced file is reopened from its beginning.
func (f *Follower) Follow(ctx context.Context, out chan<- Line) error {
	poll := f.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := f.open(ctx, poll, !f.FromStart)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	offset, _ := file.Seek(0, io.SeekCurrent)
	reader := bufio.NewReader(file)
	logger.Info("following log", logging.File(f.Path), zap.Int64("offset", offset))

	var partial strings.Builder
	for {
		chunk, err := reader.ReadString('\n')
		offset += int64(len(chunk))
		if err == nil {
			partial.WriteString(chunk)
			text := strings.TrimRight(partial.String(), "\r\n")
			partial.Reset()
			select {
			case out <- Line{Path: f.Path, Text: text}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		partial.WriteString(chunk)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}

		if rotated(file, f.Path) {
			logger.Info("log rotation detected", logging.File(f.Path))
			next, err := f.open(ctx, poll, false)
			if err != nil {
				return err
			}
			_ = file.Close()
			file = next
			offset = 0
			partial.Reset()
			reader.Reset(file)
			continue
		}

		st, err := file.Stat()
		if err == nil && st.Size() < offset {
			logger.Info("log truncation detected", logging.File(f.Path))
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				return err
			}
			offset = 0
			partial.Reset()
			reader.Reset(file)
		}
	}
}

// open opens the file, waiting for it to appear, and seeks to its end when
// atEnd is set.
func (f *Follower) open(ctx context.Context, poll time.Duration, atEnd bool) (*os.File, error) {
	for {
		file, err := os.Open(f.Path)
		if err == nil {
			if atEnd {
				if _, err := file.Seek(0, io.SeekEnd); err != nil {
					_ = file.Close()
					return nil, err
				}
			}
			return file, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// rotated reports whether path now names a different file than the open
// one. A missing path is not a rotation yet.
func rotated(file *os.File, path string) bool {
	cur, err := file.Stat()
	if err != nil {
		return false
	}
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !os.SameFile(cur, st)
}

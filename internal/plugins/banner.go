package plugins

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/logging"
)

// LogBanner only logs the bans it is asked to apply.
type LogBanner struct {
	Logger *zap.Logger
}

// Ban logs b.
func (l *LogBanner) Ban(_ context.Context, b *events.Ban) error {
	if l.Logger != nil {
		l.Logger.Info("ban",
			logging.Addr(b.Address.String()),
			logging.App(string(b.App)),
			zap.String("reason", string(b.Reason)),
			zap.Int("count", b.Count))
	}
	return nil
}

// CommandBanner runs an external firewall command per ban. The arguments
// "{addr}", "{app}" and "{reason}" are replaced before the command runs.
type CommandBanner struct {
	Command []string
	Logger  *zap.Logger
}

// Ban runs the command for b and fails when it exits non-zero.
func (c *CommandBanner) Ban(ctx context.Context, b *events.Ban) error {
	if len(c.Command) == 0 {
		return errors.New("ban command not configured")
	}
	r := strings.NewReplacer(
		"{addr}", b.Address.String(),
		"{app}", string(b.App),
		"{reason}", string(b.Reason),
	)
	args := make([]string, len(c.Command))
	for i, a := range c.Command {
		args[i] = r.Replace(a)
	}

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	if c.Logger != nil {
		c.Logger.Debug("ban command ran", logging.Addr(b.Address.String()), zap.Strings("args", args))
	}
	return nil
}

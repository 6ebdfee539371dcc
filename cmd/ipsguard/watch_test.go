package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rsclarke/ipsguard/internal/classify"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/plugins"
	"github.com/rsclarke/ipsguard/internal/tail"
)

func TestConsumeLogsEachBanOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger
	logger = zap.New(core)
	t.Cleanup(func() { logger = prev })

	c := classify.New(classify.Settings{Triggers: map[events.App]int{events.AppSSHD: 1}}, zap.NewNop())
	sets := classify.LogSets{}
	sets.Add(classify.LogSSHD, "/var/log/secure")
	p := plugins.NewPipeline(logger.Named("pipeline"))
	p.SetClassifier(c, sets, c.Settings())
	require.NoError(t, p.Init(nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lines := make(chan tail.Line, 1)
	done := make(chan struct{})
	go func() {
		consume(ctx, lines, p)
		close(done)
	}()

	lines <- tail.Line{
		Path: "/var/log/secure",
		Text: "Oct 19 10:00:00 host sshd[4321]: Failed password for root from 203.0.113.7 port 4444 ssh2",
	}
	require.Eventually(t, func() bool {
		return logs.FilterMessage("address banned").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 1, logs.FilterMessage("address banned").Len())
}

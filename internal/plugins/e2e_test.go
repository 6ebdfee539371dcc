package plugins_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/audit"
	"github.com/rsclarke/ipsguard/internal/classify"
	"github.com/rsclarke/ipsguard/internal/db"
	"github.com/rsclarke/ipsguard/internal/enforce"
	"github.com/rsclarke/ipsguard/internal/enrich"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/models"
	"github.com/rsclarke/ipsguard/internal/plugins"
	coreaudit "github.com/rsclarke/ipsguard/internal/plugins/core/audit"
	coreenforce "github.com/rsclarke/ipsguard/internal/plugins/core/enforce"
	"github.com/rsclarke/ipsguard/internal/plugins/core/storage"
)

const failedLogin = "Oct 19 10:00:00 host sshd[4321]: Failed password for root from 198.51.100.9 port 4444 ssh2"

type listedEnricher struct{}

func (listedEnricher) Enrich(_ context.Context, a addr.Address, _ enrich.Mode, _ enrich.Options) enrich.Record {
	return enrich.Record{Address: a.String(), CountryCode: "ZZ", RBLHit: "zen.spamhaus.org"}
}

type countingTerminator struct {
	calls []string
	ports [][]int
	next  coreenforce.Terminator
}

func (c *countingTerminator) TerminateSessions(a addr.Address, daemon string, ports []int) []events.Termination {
	c.calls = append(c.calls, a.String())
	c.ports = append(c.ports, ports)
	if c.next == nil {
		return nil
	}
	return c.next.TerminateSessions(a, daemon, ports)
}

func hexV4(ip string) string {
	b := netip.MustParseAddr(ip).As4()
	return fmt.Sprintf("%08X", binary.NativeEndian.Uint32(b[:]))
}

// fakeProc builds a proc tree in which pid 100 is sshd holding a session
// from remote on port 22.
func fakeProc(t *testing.T, remote string) string {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "net"), 0o755))
	table := "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n" +
		fmt.Sprintf("   0: %s:0016 %s:C350 01 00000000:00000000 00:00000000 00000000     0        0 7777 1\n", hexV4("192.0.2.1"), hexV4(remote))
	require.NoError(t, os.WriteFile(filepath.Join(root, "net", "tcp"), []byte(table), 0o644))

	dir := filepath.Join(root, "100")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fd"), 0o755))
	require.NoError(t, os.Symlink("/usr/sbin/sshd", filepath.Join(dir, "exe")))
	require.NoError(t, os.Symlink("socket:[7777]", filepath.Join(dir, "fd", "3")))
	return root
}

func TestListedAddressTerminatesSessionsOnce(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "ipsguard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	var killed []int
	enforcer := &enforce.Enforcer{
		Root: fakeProc(t, "198.51.100.9"),
		Kill: func(pid int) error { killed = append(killed, pid); return nil },
	}
	term := &countingTerminator{next: enforcer}

	var auditBuf bytes.Buffer
	auditLog := audit.NewWriter(&auditBuf, "ipsguard")

	settings := classify.Settings{Triggers: map[events.App]int{events.AppSSHD: 5}}
	c := classify.New(settings, zap.NewNop())
	logs := classify.LogSets{}
	logs.Add(classify.LogSSHD, "/var/log/secure")

	store := storage.New(database, 0)
	p := plugins.NewPipeline(zap.NewNop())
	p.SetStore(store)
	p.SetClassifier(c, logs, c.Settings())
	p.SetEnricher(listedEnricher{}, enrich.ModeRBL)
	p.SetBanner(&plugins.LogBanner{Logger: zap.NewNop()})
	p.Register(store)
	p.Register(coreenforce.New(term, nil))
	p.Register(coreaudit.New(auditLog))
	require.NoError(t, p.Init(nil))

	ctx := context.Background()
	ban, err := p.ProcessLine(ctx, failedLogin, "/var/log/secure")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, events.BanReputation, ban.Reason)

	// A second failure from the now banned address changes nothing.
	ban, err = p.ProcessLine(ctx, failedLogin, "/var/log/secure")
	require.NoError(t, err)
	assert.Nil(t, ban)

	assert.Equal(t, []string{"198.51.100.9"}, term.calls)
	assert.Equal(t, [][]int{{22}}, term.ports)
	assert.Equal(t, []int{100}, killed)

	bans, err := db.ListBans(database, 0)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Equal(t, "zen.spamhaus.org", bans[0].RBLHit)

	evs, err := db.ListEvents(database, models.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	terms, err := db.ListTerminations(database, "198.51.100.9")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, 100, terms[0].PID)
	require.NotNil(t, terms[0].BanID)
	assert.Equal(t, bans[0].ID, *terms[0].BanID)

	rep, ok, err := db.GetReputation(database, bans[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ZZ", rep.CountryCode)

	lines := strings.Split(strings.TrimSpace(auditBuf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "198.51.100.9 (ZZ) listed in zen.spamhaus.org")
}

func TestTriggerBanWithoutListing(t *testing.T) {
	settings := classify.Settings{Triggers: map[events.App]int{events.AppSSHD: 2}}
	c := classify.New(settings, zap.NewNop())
	logs := classify.LogSets{}
	logs.Add(classify.LogSSHD, "/var/log/secure")

	term := &countingTerminator{}
	p := plugins.NewPipeline(zap.NewNop())
	p.SetClassifier(c, logs, c.Settings())
	p.Register(coreenforce.New(term, nil))
	require.NoError(t, p.Init(nil))

	ctx := context.Background()
	ban, err := p.ProcessLine(ctx, failedLogin, "/var/log/secure")
	require.NoError(t, err)
	assert.Nil(t, ban)
	assert.Empty(t, term.calls)

	ban, err = p.ProcessLine(ctx, failedLogin, "/var/log/secure")
	require.NoError(t, err)
	require.NotNil(t, ban)
	assert.Equal(t, events.BanTrigger, ban.Reason)
	assert.Equal(t, 2, ban.Count)
	assert.Equal(t, []string{"198.51.100.9"}, term.calls)

	// Lines from a file outside the sshd set never classify.
	ban, err = p.ProcessLine(ctx, strings.Replace(failedLogin, "198.51.100.9", "198.51.100.10", 1), "/var/log/messages")
	require.NoError(t, err)
	assert.Nil(t, ban)
}

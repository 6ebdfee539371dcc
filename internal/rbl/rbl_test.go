package rbl

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/cache"
	"github.com/rsclarke/ipsguard/internal/rbl/rbltest"
	"github.com/rsclarke/ipsguard/internal/resolver"
)

func TestReverseName(t *testing.T) {
	tests := []struct {
		ip   string
		zone string
		want string
	}{
		{"203.0.113.7", "zen.example.org", "7.113.0.203.zen.example.org"},
		{"::ffff:203.0.113.7", "zen.example.org.", "7.113.0.203.zen.example.org"},
		{"2001:db8::1", "bl.example.net", "1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2.bl.example.net"},
	}
	for _, tt := range tests {
		if got := ReverseName(netip.MustParseAddr(tt.ip), tt.zone); got != tt.want {
			t.Errorf("ReverseName(%s) = %q, want %q", tt.ip, got, tt.want)
		}
	}
}

func TestLookupListedAndClean(t *testing.T) {
	srv := rbltest.Start(t)
	srv.AddA("7.113.0.203.zen.example.org", "127.0.0.2")
	srv.AddTXT("7.113.0.203.zen.example.org", "Listed for spam")

	r, err := resolver.NewDNS(srv.Addr)
	if err != nil {
		t.Fatalf("NewDNS: %v", err)
	}

	hit, expl, err := Lookup(context.Background(), r, netip.MustParseAddr("203.0.113.7"), "zen.example.org", time.Second)
	if err != nil || hit != "127.0.0.2" {
		t.Fatalf("listed: hit=%q err=%v", hit, err)
	}
	if len(expl) != 1 || expl[0] != "Listed for spam" {
		t.Errorf("explanations = %q", expl)
	}

	hit, expl, err = Lookup(context.Background(), r, netip.MustParseAddr("203.0.113.8"), "zen.example.org", time.Second)
	if err != nil || hit != "" || expl != nil {
		t.Errorf("clean: hit=%q expl=%q err=%v", hit, expl, err)
	}
}

// stubResolver answers A queries from a table and can be made to hang.
type stubResolver struct {
	a       map[string]string
	hang    map[string]bool
	txtErr  error
	txtWait bool
}

func (s *stubResolver) LookupA(ctx context.Context, name string) ([]netip.Addr, error) {
	if s.hang[name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if ip, ok := s.a[name]; ok {
		return []netip.Addr{netip.MustParseAddr(ip)}, nil
	}
	return nil, resolver.ErrNotFound
}

func (s *stubResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if s.txtWait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.txtErr != nil {
		return nil, s.txtErr
	}
	return []string{"listed " + name}, nil
}

func (s *stubResolver) LookupPTR(context.Context, netip.Addr) ([]string, error) {
	return nil, resolver.ErrNotFound
}

func TestLookupTimeoutNeverResponding(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.7")
	r := &stubResolver{hang: map[string]bool{ReverseName(ip, "slow.example.org"): true}}

	const deadline = 200 * time.Millisecond
	start := time.Now()
	hit, _, err := Lookup(context.Background(), r, ip, "slow.example.org", deadline)
	elapsed := time.Since(start)

	if err != nil || hit != Timeout {
		t.Fatalf("hit=%q err=%v, want TIMEOUT", hit, err)
	}
	if elapsed < deadline || elapsed > deadline+500*time.Millisecond {
		t.Errorf("returned after %v, deadline %v", elapsed, deadline)
	}
}

func TestLookupTimeoutKillsSubprocess(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "pid")
	script := filepath.Join(dir, "host")
	body := "#!/bin/sh\necho $$ > " + pidFile + "\nexec sleep 30\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	r := &resolver.Exec{Binary: script, WaitDelay: 500 * time.Millisecond}
	const deadline = 300 * time.Millisecond

	start := time.Now()
	hit, _, err := Lookup(context.Background(), r, netip.MustParseAddr("203.0.113.7"), "zen.example.org", deadline)
	elapsed := time.Since(start)
	if err != nil || hit != Timeout {
		t.Fatalf("hit=%q err=%v, want TIMEOUT", hit, err)
	}
	if elapsed > deadline+2*time.Second {
		t.Errorf("returned after %v", elapsed)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	if pid <= 0 {
		t.Fatalf("bad pid %q", data)
	}
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Errorf("resolver subprocess %d still running: %v", pid, err)
	}
}

func TestLookupTXTFailureKeepsHit(t *testing.T) {
	ip := netip.MustParseAddr("203.0.113.7")
	name := ReverseName(ip, "zen.example.org")

	r := &stubResolver{a: map[string]string{name: "127.0.0.4"}, txtErr: errors.New("servfail")}
	hit, expl, err := Lookup(context.Background(), r, ip, "zen.example.org", time.Second)
	if err != nil || hit != "127.0.0.4" || expl != nil {
		t.Errorf("txt error: hit=%q expl=%q err=%v", hit, expl, err)
	}

	r = &stubResolver{a: map[string]string{name: "127.0.0.4"}, txtWait: true}
	hit, _, err = Lookup(context.Background(), r, ip, "zen.example.org", 100*time.Millisecond)
	if err != nil || hit != "127.0.0.4" {
		t.Errorf("txt timeout: hit=%q err=%v", hit, err)
	}
}

func TestApplyOverrides(t *testing.T) {
	l := NewZoneList([]Zone{{Name: "a.example.org"}, {Name: "b.example.org"}})
	err := l.ApplyOverrides(strings.NewReader(`# local zones
disable:a.example.org
enable:c.example.org:https://c.example.org/lookup
enable:a.example.org
disableip:198.51.100.1
enableip:203.0.113.9
enableip:198.51.100.1
disableip:203.0.113.10
bogus
`))
	if err == nil || !strings.Contains(err.Error(), "line 9") {
		t.Errorf("expected error for line 9, got %v", err)
	}

	var names []string
	for _, z := range l.Zones {
		names = append(names, z.Name)
	}
	if got := strings.Join(names, ","); got != "b.example.org,c.example.org,a.example.org" {
		t.Errorf("zones = %s", got)
	}
	if l.Zones[1].Info != "https://c.example.org/lookup" {
		t.Errorf("info = %q", l.Zones[1].Info)
	}

	targets := l.Targets([]string{"198.51.100.2", "203.0.113.10"})
	if got := strings.Join(targets, ","); got != "198.51.100.2,203.0.113.9,198.51.100.1" {
		t.Errorf("targets = %s", got)
	}
	if l.Checked("203.0.113.10") {
		t.Error("disabled address still checked")
	}
}

func TestCheckerReport(t *testing.T) {
	a, err := addr.Validate("203.0.113.7", true)
	if err != nil {
		t.Fatal(err)
	}
	zones := []Zone{{Name: "one.example.org"}, {Name: "two.example.org"}, {Name: "three.example.org"}}

	r := &stubResolver{
		a:    map[string]string{ReverseName(a.Addr, "two.example.org"): "127.0.0.2"},
		hang: map[string]bool{ReverseName(a.Addr, "three.example.org"): true},
	}
	rc, err := cache.NewRBLCache(filepath.Join(t.TempDir(), "rbl"))
	if err != nil {
		t.Fatal(err)
	}
	c := &Checker{Resolver: r, Zones: NewZoneList(zones), Cache: rc, Timeout: 100 * time.Millisecond}

	start := time.Now()
	results, err := c.Report(context.Background(), a, false)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	// Zones are queried concurrently, so one slow zone bounds the pass.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("report took %v", elapsed)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, z := range zones {
		if results[i].Zone.Name != z.Name {
			t.Errorf("result %d zone %s, want %s", i, results[i].Zone.Name, z.Name)
		}
	}
	if results[0].Hit != "" || results[1].Hit != "127.0.0.2" || results[2].Hit != Timeout {
		t.Errorf("hits = %q %q %q", results[0].Hit, results[1].Hit, results[2].Hit)
	}
	if hit, _ := FirstHit(results); hit != "127.0.0.2" {
		t.Errorf("FirstHit = %q", hit)
	}

	// Second pass is served from the cache without querying.
	c.Resolver = &stubResolver{}
	cached, err := c.Report(context.Background(), a, false)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(cached) != 3 || !cached[1].Cached || cached[1].Hit != "127.0.0.2" {
		t.Errorf("cached = %+v", cached)
	}

	// A forced pass re-queries and replaces the cache.
	forced, err := c.Report(context.Background(), a, true)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if forced[1].Cached || forced[1].Hit != "" {
		t.Errorf("forced = %+v", forced[1])
	}
	after, _, _ := rc.Read(a.String())
	if len(after) != 3 || after[1].Hit != "" {
		t.Errorf("cache after forced pass = %+v", after)
	}
}

func TestFirstHitTimeout(t *testing.T) {
	hit, _ := FirstHit([]Result{{Hit: ""}, {Hit: Timeout}})
	if hit != Timeout {
		t.Errorf("FirstHit = %q, want TIMEOUT", hit)
	}
	if hit, _ := FirstHit(nil); hit != "" {
		t.Errorf("FirstHit(nil) = %q", hit)
	}
}

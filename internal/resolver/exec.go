package resolver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultBinary is the resolver executable used when none is configured.
const DefaultBinary = "host"

// Exec resolves names by running the "host" utility. The child runs in its
// own process group; when the context ends the whole group is killed.
type Exec struct {
	Binary string
	Server string
	// WaitDelay bounds how long to wait for output pipes after the group
	// has been killed.
	WaitDelay time.Duration
}

func (e *Exec) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := e.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	if e.Server != "" {
		args = append(args, e.Server)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		// host exits non-zero for NXDOMAIN and prints the reason.
		if bytes.Contains(out, []byte("NXDOMAIN")) || bytes.Contains(out, []byte("not found")) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s %s: %w", bin, strings.Join(args, " "), err)
	}
	return out, nil
}

// fields returns, for every output line containing marker, the text after it.
func fields(out []byte, marker string) []string {
	var vals []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if _, v, ok := strings.Cut(line, marker); ok {
			vals = append(vals, strings.TrimSpace(v))
		}
	}
	return vals
}

// LookupA returns the IPv4 addresses name resolves to.
func (e *Exec) LookupA(ctx context.Context, name string) ([]netip.Addr, error) {
	out, err := e.run(ctx, "-t", "A", name)
	if err != nil {
		return nil, err
	}
	var addrs []netip.Addr
	for _, v := range fields(out, " has address ") {
		if ip, err := netip.ParseAddr(v); err == nil {
			addrs = append(addrs, ip)
		}
	}
	if len(addrs) == 0 {
		return nil, ErrNotFound
	}
	return addrs, nil
}

// LookupTXT returns the TXT strings of name, one per record.
func (e *Exec) LookupTXT(ctx context.Context, name string) ([]string, error) {
	out, err := e.run(ctx, "-t", "TXT", name)
	if err != nil {
		return nil, err
	}
	var txt []string
	for _, v := range fields(out, " descriptive text ") {
		txt = append(txt, unquoteTXT(v))
	}
	if len(txt) == 0 {
		return nil, ErrNotFound
	}
	return txt, nil
}

// LookupPTR returns the host names ip maps back to.
func (e *Exec) LookupPTR(ctx context.Context, ip netip.Addr) ([]string, error) {
	out, err := e.run(ctx, ip.Unmap().String())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, v := range fields(out, " domain name pointer ") {
		names = append(names, strings.TrimSuffix(v, "."))
	}
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	return names, nil
}

// unquoteTXT joins the quoted character-strings host prints for one record.
func unquoteTXT(v string) string {
	var b strings.Builder
	for v != "" {
		v = strings.TrimSpace(v)
		if !strings.HasPrefix(v, `"`) {
			b.WriteString(v)
			break
		}
		q, err := strconv.QuotedPrefix(v)
		if err != nil {
			b.WriteString(strings.Trim(v, `"`))
			break
		}
		s, _ := strconv.Unquote(q)
		b.WriteString(s)
		v = v[len(q):]
	}
	return b.String()
}

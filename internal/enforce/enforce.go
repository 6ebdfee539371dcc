// Package enforce terminates the live sessions of a banned address by
// correlating kernel socket tables with the open descriptors of processes.
//
// The socket scan and the process scan are separate snapshots. A session
// opened between them is missed until the next call.
package enforce

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/rsclarke/ipsguard/internal/addr"
	"github.com/rsclarke/ipsguard/internal/events"
	"github.com/rsclarke/ipsguard/internal/logging"
	"github.com/rsclarke/ipsguard/internal/metrics"
)

// DefaultDaemon is the executable name a process must carry to be killed
// when no daemon is given.
const DefaultDaemon = "sshd"

// Auditor receives one line per kill.
type Auditor interface {
	Log(msg string)
}

// Enforcer kills processes holding sockets of a banned address.
type Enforcer struct {
	// Root is the proc filesystem mount, "/proc" when empty.
	Root string
	// Kill sends the forced-kill signal; unix.Kill with SIGKILL when nil.
	Kill   func(pid int) error
	Audit  Auditor
	Logger *zap.Logger
}

func (e *Enforcer) root() string {
	if e.Root == "" {
		return "/proc"
	}
	return e.Root
}

func (e *Enforcer) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Enforcer) kill(pid int) error {
	if e.Kill != nil {
		return e.Kill(pid)
	}
	return unix.Kill(pid, unix.SIGKILL)
}

// Connections reads every socket table under the proc root. Missing or
// unreadable tables are skipped.
func Connections(root string) []Connection {
	var all []Connection
	for _, proto := range Tables {
		f, err := os.Open(filepath.Join(root, "net", proto))
		if err != nil {
			continue
		}
		conns, _ := ParseTable(f, proto)
		_ = f.Close()
		all = append(all, conns...)
	}
	return all
}

// TerminateSessions kills every process holding a socket whose remote end
// is a and whose local port is in ports, provided daemon occurs in its
// resolved executable path. An empty daemon means DefaultDaemon. Processes
// that vanish or deny access during the scan are skipped.
func (e *Enforcer) TerminateSessions(a addr.Address, daemon string, ports []int) []events.Termination {
	target := a.Addr.Unmap()
	want := make(map[int]bool, len(ports))
	for _, p := range ports {
		want[p] = true
	}

	inodes := make(map[uint64]bool)
	for _, c := range Connections(e.root()) {
		if c.Inode == 0 || !want[c.LocalPort] || c.RemoteAddress.Unmap() != target {
			continue
		}
		inodes[c.Inode] = true
	}
	if len(inodes) == 0 {
		return nil
	}

	if daemon == "" {
		daemon = DefaultDaemon
	}

	var killed []events.Termination
	for _, p := range processes(e.root()) {
		inode, ok := p.holds(inodes)
		if !ok {
			continue
		}
		exe, err := os.Readlink(filepath.Join(e.root(), strconv.Itoa(p.pid), "exe"))
		if err != nil {
			continue
		}
		if !strings.Contains(exe, daemon) {
			e.logger().Debug("socket owner is not the daemon",
				logging.PID(p.pid), zap.String("exe", exe), logging.Inode(inode))
			continue
		}

		if err := e.kill(p.pid); err != nil {
			if !errors.Is(err, unix.ESRCH) {
				e.logger().Warn("kill failed", logging.PID(p.pid), zap.Error(err))
			}
			continue
		}
		metrics.TerminationsTotal.Inc()
		t := events.Termination{PID: p.pid, Exe: exe, Inode: inode, Address: a.String()}
		killed = append(killed, t)

		e.logger().Info("session terminated",
			logging.Addr(t.Address), logging.PID(t.PID), zap.String("exe", exe))
		if e.Audit != nil {
			e.Audit.Log(fmt.Sprintf("*Blocked* %s session from %s killed pid %d", daemon, t.Address, t.PID))
		}
	}
	return killed
}

type process struct {
	pid     int
	sockets []uint64
}

func (p process) holds(set map[uint64]bool) (uint64, bool) {
	for _, s := range p.sockets {
		if set[s] {
			return s, true
		}
	}
	return 0, false
}

// processes lists every process with its socket inodes. Entries that
// cannot be read are skipped.
func processes(root string) []process {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var out []process
	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil || pid <= 0 {
			continue
		}
		fdDir := filepath.Join(root, ent.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		p := process{pid: pid}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if inode, ok := socketInode(link); ok {
				p.sockets = append(p.sockets, inode)
			}
		}
		if len(p.sockets) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// socketInode parses a descriptor link of the form "socket:[12345]".
func socketInode(link string) (uint64, bool) {
	s, ok := strings.CutPrefix(link, "socket:[")
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, "]")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

// Listener is a listening socket with its owning process, if found.
type Listener struct {
	Connection
	PID int
	Exe string
}

// Listening returns the listening TCP sockets and unconnected UDP sockets
// on non-loopback addresses, joined with the processes that hold them.
func Listening(root string) []Listener {
	if root == "" {
		root = "/proc"
	}
	owners := make(map[uint64]int)
	for _, p := range processes(root) {
		for _, s := range p.sockets {
			owners[s] = p.pid
		}
	}

	var out []Listener
	for _, c := range Connections(root) {
		if !listening(c) {
			continue
		}
		l := Listener{Connection: c}
		if pid, ok := owners[c.Inode]; ok {
			l.PID = pid
			l.Exe, _ = os.Readlink(filepath.Join(root, strconv.Itoa(pid), "exe"))
		}
		out = append(out, l)
	}
	return out
}

func listening(c Connection) bool {
	local := c.LocalAddress.Unmap()
	if local.IsLoopback() || local == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return false
	}
	if strings.HasPrefix(c.Protocol, "tcp") {
		return c.State == "LISTEN"
	}
	return c.State == "CLOSE" && c.RemotePort == 0
}

package enforce

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

// Tables lists the socket tables read from <root>/net.
var Tables = []string{"tcp", "tcp6", "udp", "udp6"}

var states = map[string]string{
	"01": "ESTABLISHED",
	"02": "SYN_SENT",
	"03": "SYN_RECV",
	"04": "FIN_WAIT1",
	"05": "FIN_WAIT2",
	"06": "TIME_WAIT",
	"07": "CLOSE",
	"08": "CLOSE_WAIT",
	"09": "LAST_ACK",
	"0A": "LISTEN",
	"0B": "CLOSING",
	"0C": "NEW_SYN_RECV",
}

// Connection is one row of a kernel socket table.
type Connection struct {
	Inode         uint64
	Protocol      string
	LocalAddress  netip.Addr
	LocalPort     int
	RemoteAddress netip.Addr
	RemotePort    int
	State         string
}

// ParseTable decodes a /proc/net/{tcp,tcp6,udp,udp6} table. Rows that do
// not decode are skipped.
func ParseTable(r io.Reader, proto string) ([]Connection, error) {
	var conns []Connection
	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		c, err := parseRow(sc.Text(), proto)
		if err != nil {
			continue
		}
		conns = append(conns, c)
	}
	return conns, sc.Err()
}

func parseRow(line, proto string) (Connection, error) {
	f := strings.Fields(line)
	if len(f) < 10 {
		return Connection{}, fmt.Errorf("short row %q", line)
	}
	local, lport, err := parseEndpoint(f[1])
	if err != nil {
		return Connection{}, err
	}
	remote, rport, err := parseEndpoint(f[2])
	if err != nil {
		return Connection{}, err
	}
	inode, err := strconv.ParseUint(f[9], 10, 64)
	if err != nil {
		return Connection{}, fmt.Errorf("inode %q: %w", f[9], err)
	}
	state, ok := states[strings.ToUpper(f[3])]
	if !ok {
		state = "UNKNOWN"
	}
	return Connection{
		Inode:         inode,
		Protocol:      proto,
		LocalAddress:  local,
		LocalPort:     lport,
		RemoteAddress: remote,
		RemotePort:    rport,
		State:         state,
	}, nil
}

// parseEndpoint decodes "ADDR:PORT". The kernel prints ADDR as 32-bit words
// of network-order bytes loaded in host byte order; PORT is plain hex.
func parseEndpoint(s string) (netip.Addr, int, error) {
	h, p, ok := strings.Cut(s, ":")
	if !ok {
		return netip.Addr{}, 0, fmt.Errorf("endpoint %q", s)
	}
	port, err := strconv.ParseUint(p, 16, 16)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("port %q: %w", p, err)
	}
	raw, err := hex.DecodeString(h)
	if err != nil || (len(raw) != 4 && len(raw) != 16) {
		return netip.Addr{}, 0, fmt.Errorf("address %q", h)
	}
	for w := 0; w < len(raw); w += 4 {
		binary.NativeEndian.PutUint32(raw[w:], binary.BigEndian.Uint32(raw[w:]))
	}
	a, _ := netip.AddrFromSlice(raw)
	return a, int(port), nil
}

// Package rbltest runs an in-process DNS server answering from fixed
// record tables, for tests of RBL and PTR lookups.
package rbltest

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// Server is a UDP DNS server bound to a loopback port.
type Server struct {
	// Addr is the "host:port" the server listens on.
	Addr string

	mu   sync.Mutex
	a    map[string][]string
	txt  map[string][]string
	ptr  map[string]string
	drop map[string]bool
	hits map[string]int

	srv *dns.Server
}

// Start launches a server and registers its shutdown with t.
func Start(t testing.TB) *Server {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &Server{
		Addr: pc.LocalAddr().String(),
		a:    make(map[string][]string),
		txt:  make(map[string][]string),
		ptr:  make(map[string]string),
		drop: make(map[string]bool),
		hits: make(map[string]int),
	}

	started := make(chan struct{})
	s.srv = &dns.Server{
		PacketConn:        pc,
		Handler:           dns.HandlerFunc(s.handle),
		NotifyStartedFunc: func() { close(started) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ActivateAndServe()
	}()

	select {
	case <-started:
	case err := <-errCh:
		t.Fatalf("dns server failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}

	t.Cleanup(func() { _ = s.srv.Shutdown() })
	return s
}

func key(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// AddA adds A records for name.
func (s *Server) AddA(name string, ips ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.a[key(name)] = append(s.a[key(name)], ips...)
}

// AddTXT adds a TXT record for name.
func (s *Server) AddTXT(name string, txt ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txt[key(name)] = append(s.txt[key(name)], txt...)
}

// AddPTR maps the reverse name of ip to host.
func (s *Server) AddPTR(ip, host string) {
	rev, err := dns.ReverseAddr(ip)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ptr[key(rev)] = dns.Fqdn(host)
}

// Drop makes the server silently ignore every query for name.
func (s *Server) Drop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop[key(name)] = true
}

// Hits returns how many queries for name have been received.
func (s *Server) Hits(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key(name)]
}

func (s *Server) handle(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range r.Question {
		name := key(q.Name)
		s.hits[name]++
		if s.drop[name] {
			return
		}

		hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: 60}
		_, hasA := s.a[name]
		_, hasTXT := s.txt[name]
		_, hasPTR := s.ptr[name]
		if !hasA && !hasTXT && !hasPTR {
			m.Rcode = dns.RcodeNameError
			continue
		}

		switch q.Qtype {
		case dns.TypeA:
			for _, ip := range s.a[name] {
				m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: net.ParseIP(ip)})
			}
		case dns.TypeTXT:
			for _, txt := range s.txt[name] {
				m.Answer = append(m.Answer, &dns.TXT{Hdr: hdr, Txt: []string{txt}})
			}
		case dns.TypePTR:
			if host, ok := s.ptr[name]; ok {
				m.Answer = append(m.Answer, &dns.PTR{Hdr: hdr, Ptr: host})
			}
		}
	}

	_ = w.WriteMsg(m)
}

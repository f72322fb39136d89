// Package dnsresolve implements a minimal, from-scratch DNS client:
// raw UDP queries for MX and A records with hand-rolled message
// encoding/decoding, including compression-pointer-aware name
// parsing. It deliberately avoids any third-party DNS library --
// that is the point of this component.
package dnsresolve

import (
	"bufio"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dcd-mail/mailspool/server/metrics"
)

const (
	dnsPort        = 53
	defaultServer  = "8.8.8.8"
	resolvConfPath = "/etc/resolv.conf"
	readBufferSize = 512
)

// Resolver issues raw UDP DNS queries against one recursive server.
type Resolver struct {
	Server  string // host or host:port; resolved against port 53 if no port given
	Timeout time.Duration
	Retries int
}

// NewResolver picks the recursive server from /etc/resolv.conf,
// falling back to 8.8.8.8, with a 2s timeout and 3 attempts.
func NewResolver() *Resolver {
	return &Resolver{
		Server:  systemDNSServer(resolvConfPath),
		Timeout: 2 * time.Second,
		Retries: 3,
	}
}

// systemDNSServer reads the first uncommented "nameserver" directive
// from resolv.conf, falling back to defaultServer if the file is
// absent, unreadable, or carries no such directive.
func systemDNSServer(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return defaultServer
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "nameserver" {
			return fields[1]
		}
	}
	return defaultServer
}

// ResolveMX returns the MX exchange host with the lowest preference,
// or "" if the lookup failed or produced no answer. It never returns
// an error: the resolver's failure boundary is this return value.
func (r *Resolver) ResolveMX(domain string) string {
	buf, ok := r.query(domain, typeMX)
	if !ok {
		return ""
	}
	h, err := parseHeader(buf)
	if err != nil {
		return ""
	}
	host, err := bestMX(buf, h)
	if err != nil {
		return ""
	}
	return host
}

// ResolveA returns the dotted-quad rendering of the first A record
// for name, or "" if the lookup failed or produced no answer.
func (r *Resolver) ResolveA(name string) string {
	buf, ok := r.query(name, typeA)
	if !ok {
		return ""
	}
	h, err := parseHeader(buf)
	if err != nil {
		return ""
	}
	addr, err := firstA(buf, h)
	if err != nil {
		return ""
	}
	return addr
}

// query sends the question up to r.Retries times, returning the first
// response whose transaction ID matches what was sent.
func (r *Resolver) query(name string, qtype uint16) ([]byte, bool) {
	server := r.Server
	if !strings.Contains(server, ":") {
		server = net.JoinHostPort(server, "53")
	}

	retries := r.Retries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		buf, ok := r.attempt(server, name, qtype)
		if ok {
			metrics.DNSQueries.WithLabelValues(qtypeName(qtype), "ok").Inc()
			return buf, true
		}
	}
	metrics.DNSQueries.WithLabelValues(qtypeName(qtype), "fail").Inc()
	return nil, false
}

func qtypeName(qtype uint16) string {
	switch qtype {
	case typeA:
		return "A"
	case typeMX:
		return "MX"
	default:
		return "unknown"
	}
}

func (r *Resolver) attempt(server, name string, qtype uint16) ([]byte, bool) {
	conn, err := net.Dial("udp", server)
	if err != nil {
		return nil, false
	}
	defer conn.Close()

	id := uint16(rand.Intn(1 << 16))
	query := buildQuery(id, name, qtype)

	if err := conn.SetDeadline(time.Now().Add(r.Timeout)); err != nil {
		return nil, false
	}
	if _, err := conn.Write(query); err != nil {
		return nil, false
	}

	resp := make([]byte, readBufferSize)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, false
	}
	resp = resp[:n]

	h, err := parseHeader(resp)
	if err != nil || h.id != id {
		return nil, false
	}
	return resp, true
}

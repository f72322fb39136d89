package smtp

import (
	"net"
	"strings"
	"time"

	"github.com/dcd-mail/mailspool/server/dnsresolve"
	"github.com/dcd-mail/mailspool/server/store"
)

// Authenticator checks a user/password pair, used for the AUTH PLAIN
// extension. It returns nil on success.
type Authenticator func(user, password string) error

// Session carries the per-connection state for one inbound SMTP
// transaction: the current HELO/EHLO name, the mail draft being
// assembled, and whatever has authenticated so far.
type Session struct {
	*ReadWriter
	conn     net.Conn
	Domain   string // this server's authoritative domain, e.g. "example.com"
	Hostname string // local hostname reported in Received headers

	Store    *store.Store
	Resolver *dnsresolve.Resolver
	Auth     Authenticator

	senderHost string
	draft      *Mail
	authUser   bool
}

func NewSession(conn net.Conn, st *store.Store, resolver *dnsresolve.Resolver, domain, hostname string, auth Authenticator) *Session {
	return &Session{
		ReadWriter: NewWriter(conn),
		conn:       conn,
		Domain:     domain,
		Hostname:   hostname,
		Store:      st,
		Resolver:   resolver,
		Auth:       auth,
	}
}

// isLocalDomain reports whether host names this server's authoritative
// domain, case-insensitively, or "localhost".
func (s *Session) isLocalDomain(host string) bool {
	host = strings.ToLower(host)
	return host == strings.ToLower(s.Domain) || host == "localhost"
}

// Serve runs the inbound command loop until QUIT or a read error,
// closing the connection on return. idleTimeout is refreshed before
// every command read, so a slow-typing but active client is never cut
// off mid-session -- only a connection that goes silent is.
func Serve(conn net.Conn, st *store.Store, resolver *dnsresolve.Resolver, domain, hostname string, auth Authenticator, idleTimeout time.Duration) {
	defer conn.Close()

	s := NewSession(conn, st, resolver, domain, hostname, auth)
	s.Send(220, "%s Simple Mail Transfer Service Ready", domain)

	for {
		if idleTimeout > 0 {
			conn.SetDeadline(time.Now().Add(idleTimeout))
		}
		cmd, err := s.ReadCommand()
		if err != nil {
			return
		}

		if cmd.Name == "QUIT" {
			s.Send(221, "Bye")
			return
		}

		if !processCmd(s, cmd) {
			s.Send(500, "Unrecognized command")
		}
	}
}

package imap

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/dcd-mail/mailspool/server/store"
)

type state int

const (
	notAuthenticated state = iota
	authenticated
	selected
	logout
)

const capabilities = "IMAP4rev1 SASL-IR LOGIN-REFERRALS ID ENABLE IDLE LITERAL+"

// Authenticator checks a user/password pair. It returns nil on
// success.
type Authenticator func(user, password string) error

// cachedMessage is one entry of a SELECTed mailbox's MSN-to-UID
// mapping, fixed until the next refresh event (SELECT, NOOP, EXPUNGE).
type cachedMessage struct {
	UID     int
	Size    int64
	ModTime time.Time
}

// Session holds one IMAP connection's protocol state.
type Session struct {
	conn net.Conn
	r    *bufio.Reader

	Store *store.Store
	Auth  Authenticator

	state  state
	user   string
	folder string

	cache   []cachedMessage
	uidNext int
}

func NewSession(conn net.Conn, st *store.Store, auth Authenticator) *Session {
	return &Session{
		conn:  conn,
		r:     bufio.NewReader(conn),
		Store: st,
		Auth:  auth,
		state: notAuthenticated,
	}
}

func (s *Session) readCommand() (*Command, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return parseCommand(line)
}

func (s *Session) untagged(format string, args ...interface{}) {
	fmt.Fprintf(s.conn, "* %s\r\n", fmt.Sprintf(format, args...))
}

func (s *Session) tagged(tag, status, format string, args ...interface{}) {
	fmt.Fprintf(s.conn, "%s %s %s\r\n", tag, status, fmt.Sprintf(format, args...))
}

func (s *Session) ok(tag, format string, args ...interface{})  { s.tagged(tag, "OK", format, args...) }
func (s *Session) no(tag, format string, args ...interface{})  { s.tagged(tag, "NO", format, args...) }
func (s *Session) bad(tag, format string, args ...interface{}) { s.tagged(tag, "BAD", format, args...) }

// writeLiteral writes a raw byte literal inline in an untagged
// response. Session writes go straight to the connection unbuffered,
// so the bytes land right after whatever text was written before them.
func (s *Session) writeLiteral(data []byte) {
	fmt.Fprintf(s.conn, "{%d}\r\n", len(data))
	s.conn.Write(data)
}

// refresh reloads the cached MSN-to-UID mapping for the selected
// folder, sorted ascending by UID, and recomputes UIDNEXT.
func (s *Session) refresh() error {
	msgs, err := s.Store.ListMessages(s.user, s.folder)
	if err != nil {
		return err
	}
	s.cache = make([]cachedMessage, len(msgs))
	maxUID := 0
	for i, m := range msgs {
		s.cache[i] = cachedMessage{UID: m.UID, Size: m.Size, ModTime: m.ModTime}
		if m.UID > maxUID {
			maxUID = m.UID
		}
	}
	s.uidNext = maxUID + 1
	return nil
}

// Serve runs the IMAP session loop until LOGOUT or a read error.
// idleTimeout is refreshed before every command read, so a long but
// active session is never cut off mid-use -- only a connection that
// goes silent is.
func Serve(conn net.Conn, st *store.Store, auth Authenticator, idleTimeout time.Duration) {
	defer conn.Close()

	s := NewSession(conn, st, auth)
	s.untagged("OK [CAPABILITY %s] Service ready", capabilities)

	for s.state != logout {
		if idleTimeout > 0 {
			conn.SetDeadline(time.Now().Add(idleTimeout))
		}
		cmd, err := s.readCommand()
		if err != nil {
			return
		}
		dispatch(s, cmd)
	}
}

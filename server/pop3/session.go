package pop3

import (
	"fmt"
	"net"
	"time"

	"github.com/dcd-mail/mailspool/server/store"
)

// Authenticator checks a user/password pair. It returns nil on
// success.
type Authenticator func(user, password string) error

// entry is one message as seen through a POP3 session: a stable
// 1-based ID assigned at login time, independent of the underlying
// store UID, which survives DELE/RSET toggling within the session.
type entry struct {
	ID      int
	UID     int
	Size    int64
	Deleted bool
}

// Session holds one POP3 connection's state across the AUTHORIZATION
// and TRANSACTION stages.
type Session struct {
	*ReadWriter
	conn  net.Conn
	Store *store.Store
	Auth  Authenticator

	user        string
	pendingUser string
	entered     bool
	entries     []*entry
}

func NewSession(conn net.Conn, st *store.Store, auth Authenticator) *Session {
	return &Session{
		ReadWriter: NewWriter(conn),
		conn:       conn,
		Store:      st,
		Auth:       auth,
	}
}

// open loads the INBOX message list as of login time, assigning
// stable sequential IDs.
func (s *Session) open(user string) error {
	msgs, err := s.Store.ListMessages(user, store.Inbox)
	if err != nil {
		return err
	}

	s.user = user
	s.entries = make([]*entry, 0, len(msgs))
	for i, m := range msgs {
		flags, err := s.Store.GetFlags(user, store.Inbox, m.UID)
		if err != nil {
			return err
		}
		s.entries = append(s.entries, &entry{
			ID:      i + 1,
			UID:     m.UID,
			Size:    m.Size,
			Deleted: flags[`\Deleted`],
		})
	}
	s.entered = true
	return nil
}

func (s *Session) find(id int) *entry {
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// live returns the currently non-deleted entries, in ID order.
func (s *Session) live() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

func (s *Session) stat() (count int, size int64) {
	for _, e := range s.live() {
		count++
		size += e.Size
	}
	return
}

func (s *Session) markDeleted(id int) error {
	e := s.find(id)
	if e == nil || e.Deleted {
		return fmt.Errorf("no such message, %d", id)
	}
	if err := s.Store.UpdateFlag(s.user, store.Inbox, e.UID, `\Deleted`, true); err != nil {
		return err
	}
	e.Deleted = true
	return nil
}

// reset clears \Deleted from every entry currently marked deleted,
// including entries that already carried \Deleted at login.
func (s *Session) reset() error {
	for _, e := range s.entries {
		if e.Deleted {
			if err := s.Store.UpdateFlag(s.user, store.Inbox, e.UID, `\Deleted`, false); err != nil {
				return err
			}
			e.Deleted = false
		}
	}
	return nil
}

// commit physically removes every message still marked \Deleted. It
// runs once, at QUIT.
func (s *Session) commit() error {
	for _, e := range s.entries {
		if e.Deleted {
			if err := s.Store.DeleteMessageFile(s.user, store.Inbox, e.UID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Serve runs the POP3 session loop until QUIT or a read error.
// idleTimeout is refreshed before every command read, so a long but
// active session is never cut off mid-use -- only a connection that
// goes silent is.
func Serve(conn net.Conn, st *store.Store, auth Authenticator, idleTimeout time.Duration) {
	defer conn.Close()

	s := NewSession(conn, st, auth)
	s.OK("POP3 server ready")

	for {
		if idleTimeout > 0 {
			conn.SetDeadline(time.Now().Add(idleTimeout))
		}
		cmd, err := s.ReadCommand()
		if err != nil {
			return
		}

		if cmd.Name == "QUIT" {
			if s.entered {
				if err := s.commit(); err != nil {
					s.Err("%s", err.Error())
					return
				}
			}
			s.OK("Bye")
			return
		}

		if !dispatch(s, cmd) {
			s.Err("Unknown command")
		}
	}
}

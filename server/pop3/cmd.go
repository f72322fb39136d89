package pop3

import (
	"fmt"
	"strconv"

	"github.com/dcd-mail/mailspool/server/store"
)

type cmdFunc func(s *Session, cmd *Command)

var commands = map[string]cmdFunc{
	"USER": cmdUser,
	"PASS": cmdPass,
	"STAT": cmdStat,
	"LIST": cmdList,
	"UIDL": cmdUidl,
	"RETR": cmdRetr,
	"DELE": cmdDele,
	"RSET": cmdRset,
	"NOOP": cmdNoop,
}

func dispatch(s *Session, cmd *Command) bool {
	f, ok := commands[cmd.Name]
	if !ok {
		return false
	}
	f(s, cmd)
	return true
}

// pendingUser holds the USER name between USER and PASS; stored on
// the session itself rather than a package global since sessions run
// concurrently.
func cmdUser(s *Session, cmd *Command) {
	if cmd.Arg == "" {
		s.Err("USER requires a name")
		return
	}
	if s.entered {
		s.Err("already authenticated")
		return
	}
	s.pendingUser = cmd.Arg
	s.OK("User accepted")
}

func cmdPass(s *Session, cmd *Command) {
	if s.entered {
		s.Err("already authenticated")
		return
	}
	if s.pendingUser == "" {
		s.Err("USER expected before PASS")
		return
	}
	if s.Auth == nil || s.Auth(s.pendingUser, cmd.Arg) != nil {
		s.Err("Authentication failed")
		return
	}
	if err := s.open(s.pendingUser); err != nil {
		s.Err("%s", err.Error())
		return
	}
	s.OK("Mailbox ready")
}

func checkAuth(s *Session) bool {
	if !s.entered {
		s.Err("Not authenticated")
		return false
	}
	return true
}

func cmdStat(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	count, size := s.stat()
	s.OK("%d %d", count, size)
}

func cmdList(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	if cmd.Arg != "" {
		id, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			s.Err("Invalid argument")
			return
		}
		e := s.find(id)
		if e == nil || e.Deleted {
			s.Err("No such message, %d", id)
			return
		}
		s.OK("%d %d", e.ID, e.Size)
		return
	}

	live := s.live()
	s.OK("%d messages", len(live))
	for _, e := range live {
		s.Send(idSizeLine(e.ID, e.Size))
	}
	s.Send(".")
}

func cmdUidl(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	if cmd.Arg != "" {
		id, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			s.Err("Invalid argument")
			return
		}
		e := s.find(id)
		if e == nil || e.Deleted {
			s.Err("No such message, %d", id)
			return
		}
		s.OK("%d %d", e.ID, e.UID)
		return
	}

	live := s.live()
	s.OK("%d messages", len(live))
	for _, e := range live {
		s.Send(idSizeLine(e.ID, int64(e.UID)))
	}
	s.Send(".")
}

func cmdRetr(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	id, err := strconv.Atoi(cmd.Arg)
	if err != nil {
		s.Err("Invalid argument")
		return
	}
	e := s.find(id)
	if e == nil || e.Deleted {
		s.Err("No such message, %d", id)
		return
	}
	data, err := s.Store.ReadMessage(s.user, store.Inbox, e.UID)
	if err != nil {
		s.Err("%s", err.Error())
		return
	}
	s.OK("%d octets", len(data))
	s.SendData(data)
}

func cmdDele(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	id, err := strconv.Atoi(cmd.Arg)
	if err != nil {
		s.Err("Invalid argument")
		return
	}
	if err := s.markDeleted(id); err != nil {
		s.Err("%s", err.Error())
		return
	}
	s.OK("Message %d deleted", id)
}

func cmdRset(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	if err := s.reset(); err != nil {
		s.Err("%s", err.Error())
		return
	}
	s.OK("Maildrop has %d messages", len(s.entries))
}

func cmdNoop(s *Session, cmd *Command) {
	if !checkAuth(s) {
		return
	}
	s.OK("")
}

func idSizeLine(id int, size int64) string {
	return fmt.Sprintf("%d %d", id, size)
}

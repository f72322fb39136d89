package imap

import "strings"

func dispatch(s *Session, cmd *Command) {
	switch cmd.Verb {
	case "CAPABILITY":
		cmdCapability(s, cmd)
	case "NOOP":
		cmdNoop(s, cmd)
	case "LOGIN":
		cmdLogin(s, cmd)
	case "LOGOUT":
		cmdLogout(s, cmd)
	case "LIST":
		cmdList(s, cmd, false)
	case "LSUB":
		cmdList(s, cmd, true)
	case "CREATE":
		cmdCreate(s, cmd)
	case "DELETE":
		cmdDelete(s, cmd)
	case "RENAME":
		cmdRename(s, cmd)
	case "SUBSCRIBE":
		cmdSubscribe(s, cmd, true)
	case "UNSUBSCRIBE":
		cmdSubscribe(s, cmd, false)
	case "SELECT":
		cmdSelect(s, cmd)
	case "UID":
		cmdUID(s, cmd)
	case "EXPUNGE":
		cmdExpunge(s, cmd, false)
	case "CLOSE":
		cmdExpunge(s, cmd, true)
	default:
		s.bad(cmd.Tag, "Unknown command")
	}
}

func requireAuth(s *Session, cmd *Command) bool {
	if s.state == notAuthenticated {
		s.no(cmd.Tag, "Not authenticated")
		return false
	}
	return true
}

func requireSelected(s *Session, cmd *Command) bool {
	if s.state != selected {
		s.no(cmd.Tag, "No mailbox selected")
		return false
	}
	return true
}

func cmdCapability(s *Session, cmd *Command) {
	s.untagged("CAPABILITY %s", capabilities)
	s.ok(cmd.Tag, "CAPABILITY completed")
}

func cmdNoop(s *Session, cmd *Command) {
	if s.state == selected {
		before := len(s.cache)
		if err := s.refresh(); err != nil {
			s.no(cmd.Tag, "%s", err.Error())
			return
		}
		if len(s.cache) > before {
			s.untagged("%d EXISTS", len(s.cache))
			s.untagged("%d RECENT", len(s.cache)-before)
		}
	}
	s.ok(cmd.Tag, "NOOP completed")
}

func cmdLogin(s *Session, cmd *Command) {
	toks := tokenize(cmd.Args)
	if len(toks) != 2 {
		s.bad(cmd.Tag, "LOGIN requires a username and password")
		return
	}
	user, pass := unquote(toks[0]), unquote(toks[1])

	if s.Auth == nil || s.Auth(user, pass) != nil {
		s.no(cmd.Tag, "Authentication failed")
		return
	}
	s.user = user
	s.state = authenticated
	s.ok(cmd.Tag, "LOGIN completed")
}

func cmdLogout(s *Session, cmd *Command) {
	s.untagged("BYE Logging out")
	s.ok(cmd.Tag, "LOGOUT completed")
	s.state = logout
}

func cmdCreate(s *Session, cmd *Command) {
	if !requireAuth(s, cmd) {
		return
	}
	name := unquote(strings.TrimSpace(cmd.Args))
	if err := s.Store.CreateFolder(s.user, name); err != nil {
		s.no(cmd.Tag, "%s", err.Error())
		return
	}
	s.ok(cmd.Tag, "CREATE completed")
}

func cmdDelete(s *Session, cmd *Command) {
	if !requireAuth(s, cmd) {
		return
	}
	name := unquote(strings.TrimSpace(cmd.Args))
	if err := s.Store.DeleteFolder(s.user, name); err != nil {
		s.no(cmd.Tag, "%s", err.Error())
		return
	}
	s.ok(cmd.Tag, "DELETE completed")
}

func cmdRename(s *Session, cmd *Command) {
	if !requireAuth(s, cmd) {
		return
	}
	toks := tokenize(cmd.Args)
	if len(toks) != 2 {
		s.bad(cmd.Tag, "RENAME requires two names")
		return
	}
	if err := s.Store.RenameFolder(s.user, unquote(toks[0]), unquote(toks[1])); err != nil {
		s.no(cmd.Tag, "%s", err.Error())
		return
	}
	s.ok(cmd.Tag, "RENAME completed")
}

func cmdSubscribe(s *Session, cmd *Command, subscribed bool) {
	if !requireAuth(s, cmd) {
		return
	}
	name := unquote(strings.TrimSpace(cmd.Args))
	if err := s.Store.SetSubscribed(s.user, name, subscribed); err != nil {
		s.no(cmd.Tag, "%s", err.Error())
		return
	}
	verb := "UNSUBSCRIBE"
	if subscribed {
		verb = "SUBSCRIBE"
	}
	s.ok(cmd.Tag, "%s completed", verb)
}

func cmdSelect(s *Session, cmd *Command) {
	if !requireAuth(s, cmd) {
		return
	}
	folder := unquote(strings.TrimSpace(cmd.Args))
	if !s.Store.FolderExists(s.user, folder) {
		s.no(cmd.Tag, "No such mailbox")
		return
	}

	s.folder = folder
	if err := s.refresh(); err != nil {
		s.no(cmd.Tag, "%s", err.Error())
		return
	}
	s.state = selected

	s.untagged("%d EXISTS", len(s.cache))
	s.untagged("0 RECENT")
	s.untagged("OK [UIDVALIDITY 1] UIDs valid")
	s.untagged("OK [UIDNEXT %d] Predicted next UID", s.uidNext)
	s.untagged(`FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`)
	s.untagged(`OK [PERMANENTFLAGS (\Answered \Flagged \Deleted \Seen \Draft \*)] Limited`)
	s.tagged(cmd.Tag, "OK", "[READ-WRITE] SELECT completed")
}

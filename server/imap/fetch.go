package imap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

func cmdUID(s *Session, cmd *Command) {
	if !requireSelected(s, cmd) {
		return
	}
	fields := strings.SplitN(strings.TrimSpace(cmd.Args), " ", 2)
	sub := strings.ToUpper(fields[0])
	rest := ""
	if len(fields) == 2 {
		rest = fields[1]
	}

	switch sub {
	case "FETCH":
		cmdUIDFetch(s, cmd, rest)
	case "STORE":
		cmdUIDStore(s, cmd, rest)
	case "COPY":
		cmdUIDCopy(s, cmd, rest)
	default:
		s.bad(cmd.Tag, "Unsupported UID subcommand %s", sub)
	}
}

func maxCachedUID(s *Session) int {
	max := 0
	for _, m := range s.cache {
		if m.UID > max {
			max = m.UID
		}
	}
	return max
}

func parseUIDSet(set string, maxUID int) (map[int]bool, error) {
	result := make(map[int]bool)
	for _, part := range strings.Split(set, ",") {
		if part == "" {
			continue
		}
		if idx := strings.Index(part, ":"); idx >= 0 {
			lo, err := parseUIDToken(part[:idx], maxUID)
			if err != nil {
				return nil, err
			}
			hi, err := parseUIDToken(part[idx+1:], maxUID)
			if err != nil {
				return nil, err
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			for u := lo; u <= hi; u++ {
				result[u] = true
			}
			continue
		}
		u, err := parseUIDToken(part, maxUID)
		if err != nil {
			return nil, err
		}
		result[u] = true
	}
	return result, nil
}

func parseUIDToken(tok string, maxUID int) (int, error) {
	if tok == "*" {
		return maxUID, nil
	}
	return strconv.Atoi(tok)
}

func parseDataItems(rest string) []string {
	rest = strings.TrimSpace(unparen(strings.TrimSpace(rest)))
	if rest == "" {
		return nil
	}
	items := strings.Fields(rest)
	if len(items) == 1 {
		switch strings.ToUpper(items[0]) {
		case "ALL":
			return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"}
		case "FAST":
			return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE"}
		case "FULL":
			return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE", "BODY"}
		}
	}
	return items
}

func cmdUIDFetch(s *Session, cmd *Command, rest string) {
	toks := tokenize(rest)
	if len(toks) < 2 {
		s.bad(cmd.Tag, "FETCH requires a UID set and data items")
		return
	}
	wanted, err := parseUIDSet(toks[0], maxCachedUID(s))
	if err != nil {
		s.bad(cmd.Tag, "Malformed UID set")
		return
	}
	items := parseDataItems(strings.Join(toks[1:], " "))

	msn := 0
	for _, m := range s.cache {
		msn++
		if !wanted[m.UID] {
			continue
		}
		parts, err := s.buildFetchParts(m, items)
		if err != nil {
			continue
		}
		s.untagged("%d FETCH (UID %d %s)", msn, m.UID, strings.Join(parts, " "))
	}
	s.ok(cmd.Tag, "UID FETCH completed")
}

func (s *Session) buildFetchParts(m cachedMessage, items []string) ([]string, error) {
	var parts []string
	for _, item := range items {
		switch {
		case item == "FLAGS":
			flags, err := s.Store.GetFlags(s.user, s.folder, m.UID)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmt.Sprintf("FLAGS (%s)", formatFlags(flags)))
		case item == "RFC822.SIZE":
			parts = append(parts, fmt.Sprintf("RFC822.SIZE %d", m.Size))
		case item == "INTERNALDATE":
			parts = append(parts, fmt.Sprintf(`INTERNALDATE "%s"`, m.ModTime.Format("02-Jan-2006 15:04:05 -0700")))
		case item == "ENVELOPE":
			raw, err := s.Store.ReadMessage(s.user, s.folder, m.UID)
			if err != nil {
				return nil, err
			}
			h, _ := splitMessage(raw)
			parts = append(parts, "ENVELOPE "+envelope(parseHeaders(h)))
		case item == "BODYSTRUCTURE" || item == "BODY":
			parts = append(parts, fmt.Sprintf(`BODYSTRUCTURE ("TEXT" "PLAIN" NIL NIL NIL "7BIT" %d NIL NIL NIL)`, m.Size))
		case strings.HasPrefix(item, "BODY["):
			part, err := s.fetchBodySection(m, item)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case strings.HasPrefix(item, "BODY.PEEK["):
			part, err := s.fetchBodySectionPeek(m, strings.TrimPrefix(item, "BODY.PEEK["))
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
	}
	return parts, nil
}

func (s *Session) fetchBodySection(m cachedMessage, item string) (string, error) {
	part, err := s.fetchBodySectionPeek(m, strings.TrimPrefix(item, "BODY["))
	if err != nil {
		return "", err
	}
	if err := s.Store.UpdateFlag(s.user, s.folder, m.UID, `\Seen`, true); err != nil {
		return "", err
	}
	return strings.Replace(part, "BODY.PEEK[", "BODY[", 1), nil
}

// fetchBodySectionPeek renders BODY.PEEK[section]; section is the
// text after the opening "[", and a trailing closing "]" is trimmed.
func (s *Session) fetchBodySectionPeek(m cachedMessage, section string) (string, error) {
	section = strings.TrimSuffix(section, "]")
	raw, err := s.Store.ReadMessage(s.user, s.folder, m.UID)
	if err != nil {
		return "", err
	}
	header, body := splitMessage(raw)

	var content string
	switch strings.ToUpper(section) {
	case "HEADER":
		content = header
	case "TEXT":
		content = body
	case "":
		content = string(raw)
	default:
		content = ""
	}
	return fmt.Sprintf("BODY.PEEK[%s] {%d}\r\n%s", section, len(content), content), nil
}

func formatFlags(flags map[string]bool) string {
	names := make([]string, 0, len(flags))
	for f, set := range flags {
		if set {
			names = append(names, f)
		}
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

func cmdUIDStore(s *Session, cmd *Command, rest string) {
	toks := tokenize(rest)
	if len(toks) < 3 {
		s.bad(cmd.Tag, "STORE requires a UID set, an action, and flags")
		return
	}
	wanted, err := parseUIDSet(toks[0], maxCachedUID(s))
	if err != nil {
		s.bad(cmd.Tag, "Malformed UID set")
		return
	}

	action := strings.ToUpper(toks[1])
	silent := strings.HasSuffix(action, ".SILENT")
	action = strings.TrimSuffix(action, ".SILENT")

	newFlags := strings.Fields(unparen(strings.Join(toks[2:], " ")))

	msn := 0
	for _, m := range s.cache {
		msn++
		if !wanted[m.UID] {
			continue
		}
		if err := applyStoreAction(s, m.UID, action, newFlags); err != nil {
			continue
		}
		if silent {
			continue
		}
		flags, err := s.Store.GetFlags(s.user, s.folder, m.UID)
		if err != nil {
			continue
		}
		s.untagged("%d FETCH (UID %d FLAGS (%s))", msn, m.UID, formatFlags(flags))
	}
	s.ok(cmd.Tag, "UID STORE completed")
}

func applyStoreAction(s *Session, uid int, action string, flags []string) error {
	switch action {
	case "+FLAGS":
		for _, f := range flags {
			if err := s.Store.UpdateFlag(s.user, s.folder, uid, f, true); err != nil {
				return err
			}
		}
	case "-FLAGS":
		for _, f := range flags {
			if err := s.Store.UpdateFlag(s.user, s.folder, uid, f, false); err != nil {
				return err
			}
		}
	case "FLAGS":
		set := make(map[string]bool, len(flags))
		for _, f := range flags {
			set[f] = true
		}
		if err := s.Store.SetFlags(s.user, s.folder, uid, set); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported STORE action %s", action)
	}
	return nil
}

func cmdUIDCopy(s *Session, cmd *Command, rest string) {
	toks := tokenize(rest)
	if len(toks) != 2 {
		s.bad(cmd.Tag, "COPY requires a UID set and a destination")
		return
	}
	wanted, err := parseUIDSet(toks[0], maxCachedUID(s))
	if err != nil {
		s.bad(cmd.Tag, "Malformed UID set")
		return
	}
	dest := unquote(toks[1])
	if dest != "INBOX" && !s.Store.FolderExists(s.user, dest) {
		s.no(cmd.Tag, "No such destination mailbox")
		return
	}

	var srcUIDs, dstUIDs []string
	for _, m := range s.cache {
		if !wanted[m.UID] {
			continue
		}
		newUID, err := s.Store.CopyMessage(s.user, s.folder, m.UID, dest)
		if err != nil {
			s.no(cmd.Tag, "%s", err.Error())
			return
		}
		srcUIDs = append(srcUIDs, strconv.Itoa(m.UID))
		dstUIDs = append(dstUIDs, strconv.Itoa(newUID))
	}

	s.tagged(cmd.Tag, "OK", "[COPYUID 1 %s %s] COPY completed",
		strings.Join(srcUIDs, ","), strings.Join(dstUIDs, ","))
}

func cmdExpunge(s *Session, cmd *Command, silent bool) {
	if !requireSelected(s, cmd) {
		return
	}

	remaining := s.cache[:0:0]
	counter := 0
	for _, m := range s.cache {
		counter++
		flags, err := s.Store.GetFlags(s.user, s.folder, m.UID)
		if err != nil {
			remaining = append(remaining, m)
			continue
		}
		if flags[`\Deleted`] {
			if err := s.Store.DeleteMessageFile(s.user, s.folder, m.UID); err != nil {
				remaining = append(remaining, m)
				continue
			}
			if !silent {
				s.untagged("%d EXPUNGE", counter)
			}
			counter--
			continue
		}
		remaining = append(remaining, m)
	}
	s.cache = remaining

	if silent {
		s.state = authenticated
		s.folder = ""
		s.conn.Close()
		return
	}
	s.ok(cmd.Tag, "EXPUNGE completed")
}

package imap

import (
	"regexp"
	"strings"
)

func cmdList(s *Session, cmd *Command, subscribedOnly bool) {
	if !requireAuth(s, cmd) {
		return
	}
	toks := tokenize(cmd.Args)
	if len(toks) != 2 {
		s.bad(cmd.Tag, "%s requires a reference and a mailbox pattern", cmd.Verb)
		return
	}
	ref, pat := unquote(toks[0]), unquote(toks[1])

	verb := "LIST"
	if subscribedOnly {
		verb = "LSUB"
	}

	if ref == "" && pat == "" {
		s.untagged(`LIST (\Noselect) "/" ""`)
		s.ok(cmd.Tag, "%s completed", verb)
		return
	}

	re := patternToRegexp(ref + pat)

	folders, err := s.Store.ListFolders(s.user)
	if err != nil {
		s.no(cmd.Tag, "%s", err.Error())
		return
	}

	for _, f := range folders {
		if !re.MatchString(f.Name) {
			continue
		}
		if subscribedOnly {
			ok, err := s.Store.IsSubscribed(s.user, f.Name)
			if err != nil || !ok {
				continue
			}
		}
		attr := `\HasNoChildren`
		if f.HasChildren {
			attr = `\HasChildren`
		}
		s.untagged(`%s (%s) "/" "%s"`, verb, attr, f.Name)
	}
	s.ok(cmd.Tag, "%s completed", verb)
}

// patternToRegexp translates the IMAP mailbox-name wildcards ("*"
// matches any run of characters, "%" matches any run that does not
// contain "/") into an anchored regular expression.
func patternToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '%':
			b.WriteString("[^/]*")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

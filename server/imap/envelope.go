package imap

import (
	"fmt"
	"strings"
)

// headers is a parsed message's header block as a lookup keyed by
// lower-cased name; it keeps only the first value per key, which is
// all ENVELOPE needs.
type headers map[string]string

// splitMessage separates a message's header block from its body at
// RFC 5322's blank-line boundary, after converting CRLF to LF.
// Continuation lines are left folded; parseHeaders unfolds them.
func splitMessage(raw []byte) (header, body string) {
	text := string(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	idx := strings.Index(text, "\n\n")
	if idx < 0 {
		return text, ""
	}
	return text[:idx], text[idx+2:]
}

func parseHeaders(block string) headers {
	h := make(headers)
	lines := strings.Split(block, "\n")

	var key, val string
	flush := func() {
		if key != "" {
			if _, exists := h[key]; !exists {
				h[key] = strings.TrimSpace(val)
			}
		}
	}

	for _, line := range lines {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && key != "" {
			val += " " + strings.TrimSpace(line)
			continue
		}
		flush()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			key = ""
			continue
		}
		key = strings.ToLower(strings.TrimSpace(parts[0]))
		val = parts[1]
	}
	flush()
	return h
}

func (h headers) get(key string) string {
	return h[strings.ToLower(key)]
}

// envelope renders the ENVELOPE data item: a fixed 10-field tuple of
// quoted strings, NIL for anything absent, and one address group per
// address-bearing field.
func envelope(h headers) string {
	fields := []string{
		quoteOrNil(h.get("date")),
		quoteOrNil(h.get("subject")),
		addressGroup(h.get("from")),
		addressGroup(orElse(h.get("sender"), h.get("from"))),
		addressGroup(orElse(h.get("reply-to"), h.get("from"))),
		addressGroup(h.get("to")),
		addressGroup(h.get("cc")),
		addressGroup(h.get("bcc")),
		quoteOrNil(h.get("in-reply-to")),
		quoteOrNil(h.get("message-id")),
	}
	return "(" + strings.Join(fields, " ") + ")"
}

func orElse(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func quoteOrNil(s string) string {
	if s == "" {
		return "NIL"
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// addressGroup renders one address-bearing header as IMAP's
// "((name NIL local domain) ...)" list, or NIL if the header is
// absent.
func addressGroup(field string) string {
	if field == "" {
		return "NIL"
	}
	var parts []string
	for _, addr := range strings.Split(field, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		name, mailbox := splitDisplayName(addr)
		local, domain := splitMailbox(mailbox)
		parts = append(parts, fmt.Sprintf("(%s NIL %s %s)", quoteOrNil(name), quoteOrNil(local), quoteOrNil(domain)))
	}
	if len(parts) == 0 {
		return "NIL"
	}
	return "(" + strings.Join(parts, "") + ")"
}

func splitDisplayName(addr string) (name, mailbox string) {
	if i := strings.Index(addr, "<"); i >= 0 && strings.HasSuffix(addr, ">") {
		return strings.TrimSpace(addr[:i]), addr[i+1 : len(addr)-1]
	}
	return "", addr
}

func splitMailbox(mailbox string) (local, domain string) {
	i := strings.Index(mailbox, "@")
	if i < 0 {
		return mailbox, ""
	}
	return mailbox[:i], mailbox[i+1:]
}

package imap

import (
	"bufio"
	"net"
	"testing"

	"github.com/dcd-mail/mailspool/server/store"
	"github.com/stretchr/testify/require"
)

func TestParseCommandSplitsTagVerbAndArgs(t *testing.T) {
	cmd, err := parseCommand("A1 LOGIN \"bob\" \"secret\"\r\n")
	require.NoError(t, err)
	require.Equal(t, "A1", cmd.Tag)
	require.Equal(t, "LOGIN", cmd.Verb)
	require.Equal(t, `"bob" "secret"`, cmd.Args)
}

func TestTokenizeKeepsQuotedAndParenthesizedSpansWhole(t *testing.T) {
	toks := tokenize(`1:* (FLAGS RFC822.SIZE) "a b"`)
	require.Equal(t, []string{"1:*", "(FLAGS RFC822.SIZE)", `"a b"`}, toks)
}

func TestPatternToRegexpStarMatchesAnything(t *testing.T) {
	re := patternToRegexp("*")
	require.True(t, re.MatchString("INBOX"))
	require.True(t, re.MatchString("Archive/2020"))
}

func TestPatternToRegexpPercentStopsAtSlash(t *testing.T) {
	re := patternToRegexp("%")
	require.True(t, re.MatchString("Archive"))
	require.False(t, re.MatchString("Archive/2020"))
}

func TestParseUIDSetRanges(t *testing.T) {
	set, err := parseUIDSet("1:3", 10)
	require.NoError(t, err)
	require.Equal(t, map[int]bool{1: true, 2: true, 3: true}, set)
}

func TestParseUIDSetStarMapsToMax(t *testing.T) {
	set, err := parseUIDSet("1:*", 5)
	require.NoError(t, err)
	require.Len(t, set, 5)
	require.True(t, set[5])
}

func TestParseUIDSetCommaList(t *testing.T) {
	set, err := parseUIDSet("1,3,5", 10)
	require.NoError(t, err)
	require.Equal(t, map[int]bool{1: true, 3: true, 5: true}, set)
}

func TestParseDataItemsExpandsALLMacro(t *testing.T) {
	items := parseDataItems("ALL")
	require.Equal(t, []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"}, items)
}

func TestParseDataItemsExpandsFULLMacro(t *testing.T) {
	items := parseDataItems("FULL")
	require.Contains(t, items, "BODY")
	require.Contains(t, items, "ENVELOPE")
}

func TestParseDataItemsPassesThroughExplicitList(t *testing.T) {
	items := parseDataItems("(FLAGS UID)")
	require.Equal(t, []string{"FLAGS", "UID"}, items)
}

func TestFormatFlagsSortsAndFiltersUnset(t *testing.T) {
	flags := map[string]bool{`\Seen`: true, `\Deleted`: false, `\Answered`: true}
	require.Equal(t, `\Answered \Seen`, formatFlags(flags))
}

func TestEnvelopeRendersAddressFields(t *testing.T) {
	h := parseHeaders("From: Bob <bob@example.com>\nTo: alice@example.org\nSubject: hi\n")
	env := envelope(h)
	require.Contains(t, env, `"Bob"`)
	require.Contains(t, env, `"bob"`)
	require.Contains(t, env, `"example.com"`)
	require.Contains(t, env, `"hi"`)
}

func TestEnvelopeNilsAbsentFields(t *testing.T) {
	h := parseHeaders("Subject: hi\n")
	env := envelope(h)
	require.Contains(t, env, "NIL")
}

func TestSplitMessageFindsHeaderBodyBoundary(t *testing.T) {
	header, body := splitMessage([]byte("Subject: hi\r\n\r\nhello world\r\n"))
	require.Equal(t, "Subject: hi", header)
	require.Equal(t, "hello world\n", body)
}

func TestParseHeadersUnfoldsContinuationLines(t *testing.T) {
	h := parseHeaders("Subject: hi\n there\nFrom: bob@example.com\n")
	require.Equal(t, "hi there", h.get("subject"))
}

// TestExpungeEmitsCurrentSequenceNumber covers the scenario where three
// messages are delivered (UIDs 1,2,3), the message at MSN 2 is marked
// \Deleted, and EXPUNGE must report it as "* 2 EXPUNGE" -- the MSN at
// the moment of removal, not a post-removal renumbering.
func TestExpungeEmitsCurrentSequenceNumber(t *testing.T) {
	st := store.New(t.TempDir())
	for i := 0; i < 3; i++ {
		_, err := st.SaveEmail("dcd", store.Inbox, []byte("body\r\n"))
		require.NoError(t, err)
	}

	client, srv := net.Pipe()
	defer client.Close()

	s := NewSession(srv, st, nil)
	s.user = "dcd"
	s.folder = store.Inbox
	s.state = selected
	require.NoError(t, s.refresh())
	require.Len(t, s.cache, 3)

	require.NoError(t, st.UpdateFlag("dcd", store.Inbox, s.cache[1].UID, `\Deleted`, true))

	out := make(chan string, 1)
	go func() {
		r := bufio.NewReader(client)
		line, _ := r.ReadString('\n')
		out <- line
		r.ReadString('\n') // drain the tagged OK completing the command
	}()

	cmdExpunge(s, &Command{Tag: "A1"}, false)

	line := <-out
	require.Equal(t, "* 2 EXPUNGE\r\n", line)
	require.Len(t, s.cache, 2)
}

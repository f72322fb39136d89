package smtp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/dcd-mail/mailspool/server/store"
	"github.com/stretchr/testify/require"
)

func TestParseCommandSplitsVerbAndArgument(t *testing.T) {
	cmd, err := parseCommand("MAIL FROM:<bob@example.com>\r\n")
	require.NoError(t, err)
	require.Equal(t, "MAIL", cmd.Name)
	require.Equal(t, "FROM:<bob@example.com>", cmd.Arg)
}

func TestParseCommandUppercasesVerb(t *testing.T) {
	cmd, err := parseCommand("quit\r\n")
	require.NoError(t, err)
	require.Equal(t, "QUIT", cmd.Name)
}

func TestParseCommandRequiresCRLF(t *testing.T) {
	_, err := parseCommand("HELO foo\n")
	require.Error(t, err)
}

func TestReadReplySingleLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("250 OK\r\n"))
	code, err := readReply(r)
	require.NoError(t, err)
	require.Equal(t, 250, code)
}

func TestReadReplyFollowsContinuationLines(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("250-first\r\n250-second\r\n250 done\r\n"))
	code, err := readReply(r)
	require.NoError(t, err)
	require.Equal(t, 250, code)
}

func TestDecodePlainAuthExtractsUserAndPassword(t *testing.T) {
	// base64("\x00gas\x00123") per the teacher's own AUTH PLAIN example.
	user, pass, err := decodePlainAuth("AGdhcwAxMjM=")
	require.NoError(t, err)
	require.Equal(t, "gas", user)
	require.Equal(t, "123", pass)
}

func TestWithEnvelopeHeadersAddsMissingFromAndTo(t *testing.T) {
	from := &Address{Name: "bob", Host: "example.com"}
	to := &Address{Name: "alice", Host: "example.org"}
	body := withEnvelopeHeaders("Subject: hi\r\n\r\nhello\r\n", from, to)
	require.Contains(t, body, "From: bob@example.com")
	require.Contains(t, body, "To: alice@example.org")
}

func TestWithEnvelopeHeadersLeavesExistingHeadersAlone(t *testing.T) {
	from := &Address{Name: "bob", Host: "example.com"}
	to := &Address{Name: "alice", Host: "example.org"}
	body := withEnvelopeHeaders("From: someone@else.com\r\n\r\nhi\r\n", from, to)
	require.Equal(t, 1, strings.Count(body, "From:"))
}

func TestDeliverLocalWritesEnvelopeHeaders(t *testing.T) {
	st := store.New(t.TempDir())
	s := &Session{
		Store:  st,
		Domain: "example.com",
		draft:  NewDraft(&Path{Addr: &Address{Name: "bob", Host: "example.com"}}),
	}

	err := deliverLocal(s, &Address{Name: "alice", Host: "example.com"}, "Subject: hi\r\n\r\nbody\r\n")
	require.NoError(t, err)

	msgs, err := st.ListMessages("alice", store.Inbox)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	raw, err := st.ReadMessage("alice", store.Inbox, msgs[0].UID)
	require.NoError(t, err)
	require.Contains(t, string(raw), "Return-Path: <bob@example.com>")
	require.Contains(t, string(raw), "Delivered-To: alice@example.com")
}

func TestIsLocalDomainMatchesDomainAndLocalhostCaseInsensitively(t *testing.T) {
	s := &Session{Domain: "Example.COM"}
	require.True(t, s.isLocalDomain("example.com"))
	require.True(t, s.isLocalDomain("LOCALHOST"))
	require.False(t, s.isLocalDomain("elsewhere.net"))
}

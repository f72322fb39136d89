package pop3

import (
	"testing"

	"github.com/dcd-mail/mailspool/server/store"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, *store.Store) {
	st := store.New(t.TempDir())
	_, err := st.SaveEmail("dcd", store.Inbox, []byte("one\r\n"))
	require.NoError(t, err)
	_, err = st.SaveEmail("dcd", store.Inbox, []byte("two\r\n"))
	require.NoError(t, err)

	s := &Session{Store: st}
	require.NoError(t, s.open("dcd"))
	return s, st
}

func TestOpenAssignsSequentialIDs(t *testing.T) {
	s, _ := newTestSession(t)
	require.Len(t, s.entries, 2)
	require.Equal(t, 1, s.entries[0].ID)
	require.Equal(t, 2, s.entries[1].ID)
}

func TestStatCountsOnlyLiveMessages(t *testing.T) {
	s, _ := newTestSession(t)
	count, size := s.stat()
	require.Equal(t, 2, count)
	require.Positive(t, size)

	require.NoError(t, s.markDeleted(1))
	count, _ = s.stat()
	require.Equal(t, 1, count)
}

func TestMarkDeletedIsDurableInStore(t *testing.T) {
	s, st := newTestSession(t)
	require.NoError(t, s.markDeleted(1))

	flags, err := st.GetFlags("dcd", store.Inbox, s.entries[0].UID)
	require.NoError(t, err)
	require.True(t, flags[`\Deleted`])
}

func TestResetClearsDeletedFlags(t *testing.T) {
	s, st := newTestSession(t)
	require.NoError(t, s.markDeleted(1))
	require.NoError(t, s.reset())

	require.False(t, s.entries[0].Deleted)
	flags, err := st.GetFlags("dcd", store.Inbox, s.entries[0].UID)
	require.NoError(t, err)
	require.False(t, flags[`\Deleted`])
}

func TestCommitPhysicallyRemovesDeletedMessages(t *testing.T) {
	s, st := newTestSession(t)
	require.NoError(t, s.markDeleted(1))
	require.NoError(t, s.commit())

	msgs, err := st.ListMessages("dcd", store.Inbox)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestIDsStayStableAcrossDeletion(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.markDeleted(1))

	// The surviving message keeps its original ID 2, it is not
	// renumbered to 1.
	live := s.live()
	require.Len(t, live, 1)
	require.Equal(t, 2, live[0].ID)
}

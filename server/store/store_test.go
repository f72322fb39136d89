package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveEmailAllocatesMonotonicUIDs(t *testing.T) {
	s := New(t.TempDir())

	uid1, err := s.SaveEmail("dcd", Inbox, []byte("hello\r\n"))
	require.NoError(t, err)
	require.Equal(t, 1, uid1)

	uid2, err := s.SaveEmail("dcd", Inbox, []byte("world\r\n"))
	require.NoError(t, err)
	require.Equal(t, 2, uid2)

	msgs, err := s.ListMessages("dcd", Inbox)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, 1, msgs[0].UID)
	require.Equal(t, 2, msgs[1].UID)
}

func TestSaveEmailMarksRecent(t *testing.T) {
	s := New(t.TempDir())
	uid, err := s.SaveEmail("dcd", Inbox, []byte("hi\r\n"))
	require.NoError(t, err)

	flags, err := s.GetFlags("dcd", Inbox, uid)
	require.NoError(t, err)
	require.True(t, flags[`\Recent`])
}

func TestInboxAlwaysExistsCaseInsensitive(t *testing.T) {
	s := New(t.TempDir())
	require.True(t, s.FolderExists("dcd", "INBOX"))
	require.True(t, s.FolderExists("dcd", "inbox"))
	require.True(t, s.FolderExists("dcd", "InBoX"))
	require.False(t, s.FolderExists("dcd", "Archive"))
}

func TestDeleteFolderRejectsInbox(t *testing.T) {
	s := New(t.TempDir())
	err := s.DeleteFolder("dcd", "inbox")
	require.Error(t, err)
}

func TestCreateDeleteRenameFolder(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.CreateFolder("dcd", "Archive"))
	require.True(t, s.FolderExists("dcd", "Archive"))

	require.NoError(t, s.RenameFolder("dcd", "Archive", "Saved"))
	require.False(t, s.FolderExists("dcd", "Archive"))
	require.True(t, s.FolderExists("dcd", "Saved"))

	require.NoError(t, s.DeleteFolder("dcd", "Saved"))
	require.False(t, s.FolderExists("dcd", "Saved"))
}

func TestCopyMessageAllocatesFreshUIDAndMarksSeen(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.CreateFolder("dcd", "Archive"))

	uid, err := s.SaveEmail("dcd", Inbox, []byte("body\r\n"))
	require.NoError(t, err)

	newUID, err := s.CopyMessage("dcd", Inbox, uid, "Archive")
	require.NoError(t, err)
	require.Equal(t, 1, newUID)

	flags, err := s.GetFlags("dcd", "Archive", newUID)
	require.NoError(t, err)
	require.True(t, flags[`\Seen`])
}

func TestUpdateFlagIsIdempotentRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	uid, err := s.SaveEmail("dcd", Inbox, []byte("body\r\n"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateFlag("dcd", Inbox, uid, `\Seen`, true))
	flags, err := s.GetFlags("dcd", Inbox, uid)
	require.NoError(t, err)
	require.True(t, flags[`\Seen`])

	require.NoError(t, s.UpdateFlag("dcd", Inbox, uid, `\Seen`, false))
	flags, err = s.GetFlags("dcd", Inbox, uid)
	require.NoError(t, err)
	require.False(t, flags[`\Seen`])
}

func TestFolderUIDStableAcrossCalls(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.SaveEmail("dcd", Inbox, []byte("x\r\n"))
	require.NoError(t, err)

	id1, err := s.GetFolderUID("dcd", Inbox)
	require.NoError(t, err)
	id2, err := s.GetFolderUID("dcd", Inbox)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.NotEmpty(t, id1)
}

func TestListFoldersAlwaysIncludesInbox(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.CreateFolder("dcd", "Work"))

	folders, err := s.ListFolders("dcd")
	require.NoError(t, err)

	names := make([]string, 0, len(folders))
	for _, f := range folders {
		names = append(names, f.Name)
	}
	require.Contains(t, names, Inbox)
	require.Contains(t, names, "Work")
}

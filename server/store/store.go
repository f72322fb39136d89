// Package store implements the shared mailbox storage layer: a folder
// tree on disk, one file per message, and a per-folder metadata record
// holding UID allocation state, subscription, and flags. Every
// exported method is serialized through a per-user reader/writer lock
// (server/lock) -- reads take the read lock, mutations take the write
// lock -- so callers never need to lock anything themselves.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dcd-mail/mailspool/server/lock"
	"github.com/dcd-mail/mailspool/server/mailerr"
)

const Inbox = "INBOX"

// Store roots every user's mail under one base directory.
type Store struct {
	baseDir string
	locks   *lock.Manager
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, locks: lock.NewManager()}
}

// MessageInfo describes one stored message without reading its body.
type MessageInfo struct {
	UID     int
	Path    string
	Size    int64
	ModTime time.Time
}

// FolderInfo describes one folder found while walking a user's tree.
type FolderInfo struct {
	// Name is the folder's path relative to the user root, using "/"
	// as the hierarchy separator regardless of OS.
	Name        string
	HasChildren bool
}

// canonicalFolder maps any case variant of "inbox" to the literal
// INBOX directory name; every other folder name is case-sensitive.
func canonicalFolder(name string) string {
	if strings.EqualFold(name, Inbox) {
		return Inbox
	}
	return name
}

func (s *Store) userDir(user string) string {
	return filepath.Join(s.baseDir, user)
}

func (s *Store) folderDir(user, folder string) string {
	return filepath.Join(s.userDir(user), filepath.FromSlash(canonicalFolder(folder)))
}

// GetUserDirectory returns (and creates, if absent) the root storage
// directory for a user.
func (s *Store) GetUserDirectory(user string) (string, error) {
	dir := s.userDir(user)
	var outErr error
	_ = s.locks.WithWrite(user, func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			outErr = mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
	return dir, outErr
}

// SaveEmail allocates the next UID in folder, creates the folder if
// missing, writes "<uid>.eml", and marks the new message \Recent.
func (s *Store) SaveEmail(user, folder string, data []byte) (int, error) {
	var uid int
	err := s.locks.WithWrite(user, func() error {
		dir := s.folderDir(user, folder)
		meta, err := loadOrInitMetadata(dir)
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		uid, err = meta.nextUID()
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%d.eml", uid))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		if err := meta.updateFlag(uid, `\Recent`, true); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
	return uid, err
}

// CreateFolder creates an empty folder (and its metadata record).
func (s *Store) CreateFolder(user, folder string) error {
	folder = canonicalFolder(folder)
	return s.locks.WithWrite(user, func() error {
		dir := s.folderDir(user, folder)
		if _, err := os.Stat(dir); err == nil {
			return mailerr.Newf(mailerr.Storage, "folder %q already exists", folder)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		if _, err := loadOrInitMetadata(dir); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
}

// DeleteFolder removes a folder and everything beneath it. INBOX can
// never be deleted.
func (s *Store) DeleteFolder(user, folder string) error {
	folder = canonicalFolder(folder)
	if folder == Inbox {
		return mailerr.Newf(mailerr.State, "cannot delete INBOX")
	}
	return s.locks.WithWrite(user, func() error {
		dir := s.folderDir(user, folder)
		if _, err := os.Stat(dir); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
}

// RenameFolder renames a folder atomically. INBOX can never be
// renamed.
func (s *Store) RenameFolder(user, oldName, newName string) error {
	oldName = canonicalFolder(oldName)
	newName = canonicalFolder(newName)
	if oldName == Inbox {
		return mailerr.Newf(mailerr.State, "cannot rename INBOX")
	}
	return s.locks.WithWrite(user, func() error {
		oldDir := s.folderDir(user, oldName)
		newDir := s.folderDir(user, newName)
		if _, err := os.Stat(oldDir); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		if _, err := os.Stat(newDir); err == nil {
			return mailerr.Newf(mailerr.Storage, "folder %q already exists", newName)
		}
		if err := os.MkdirAll(filepath.Dir(newDir), 0o755); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		if err := os.Rename(oldDir, newDir); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
}

// FolderExists reports whether folder exists. INBOX always "exists"
// logically even before its directory has been created on disk.
func (s *Store) FolderExists(user, folder string) bool {
	folder = canonicalFolder(folder)
	if folder == Inbox {
		return true
	}
	var exists bool
	_ = s.locks.WithRead(user, func() error {
		info, err := os.Stat(s.folderDir(user, folder))
		exists = err == nil && info.IsDir()
		return nil
	})
	return exists
}

// ListMessages returns every message in folder, ordered ascending by
// UID.
func (s *Store) ListMessages(user, folder string) ([]MessageInfo, error) {
	var out []MessageInfo
	err := s.locks.WithRead(user, func() error {
		dir := s.folderDir(user, folder)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				out = []MessageInfo{}
				return nil
			}
			return mailerr.New(mailerr.Storage, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".eml") {
				continue
			}
			uid, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".eml"))
			if err != nil {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, MessageInfo{
				UID:     uid,
				Path:    filepath.Join(dir, e.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
		return nil
	})
	return out, err
}

// GetMessageFile returns the on-disk path of one message.
func (s *Store) GetMessageFile(user, folder string, uid int) (string, error) {
	var path string
	err := s.locks.WithRead(user, func() error {
		p := filepath.Join(s.folderDir(user, folder), fmt.Sprintf("%d.eml", uid))
		if _, err := os.Stat(p); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		path = p
		return nil
	})
	return path, err
}

// ReadMessage returns the full contents of a message.
func (s *Store) ReadMessage(user, folder string, uid int) ([]byte, error) {
	var data []byte
	err := s.locks.WithRead(user, func() error {
		p := filepath.Join(s.folderDir(user, folder), fmt.Sprintf("%d.eml", uid))
		b, err := os.ReadFile(p)
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		data = b
		return nil
	})
	return data, err
}

// CopyMessage copies srcUID from srcFolder into destFolder under a
// freshly allocated UID, marking the copy \Seen, and returns the new
// UID.
func (s *Store) CopyMessage(user, srcFolder string, srcUID int, destFolder string) (int, error) {
	var destUID int
	err := s.locks.WithWrite(user, func() error {
		srcPath := filepath.Join(s.folderDir(user, srcFolder), fmt.Sprintf("%d.eml", srcUID))
		src, err := os.Open(srcPath)
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		defer src.Close()

		destDir := s.folderDir(user, destFolder)
		meta, err := loadOrInitMetadata(destDir)
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		destUID, err = meta.nextUID()
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		destPath := filepath.Join(destDir, fmt.Sprintf("%d.eml", destUID))
		dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		defer dst.Close()
		if _, err := io.Copy(dst, src); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		if err := meta.updateFlag(destUID, `\Seen`, true); err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
	return destUID, err
}

// DeleteMessageFile removes one message's file and drops its UID entry
// from the folder's metadata flag map. LAST_UID is left unchanged, so
// the UID is never reused.
func (s *Store) DeleteMessageFile(user, folder string, uid int) error {
	return s.locks.WithWrite(user, func() error {
		p := filepath.Join(s.folderDir(user, folder), fmt.Sprintf("%d.eml", uid))
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return mailerr.New(mailerr.Storage, err)
		}
		dir := s.folderDir(user, folder)
		meta, err := loadOrInitMetadata(dir)
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return meta.removeUID(uid)
	})
}

func (s *Store) GetFlags(user, folder string, uid int) (map[string]bool, error) {
	var flags map[string]bool
	err := s.locks.WithRead(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		flags = meta.getFlags(uid)
		return nil
	})
	return flags, err
}

func (s *Store) SetFlags(user, folder string, uid int, flags map[string]bool) error {
	return s.locks.WithWrite(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return meta.setFlags(uid, flags)
	})
}

func (s *Store) UpdateFlag(user, folder string, uid int, flag string, add bool) error {
	return s.locks.WithWrite(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return meta.updateFlag(uid, flag, add)
	})
}

func (s *Store) GetNextUID(user, folder string) (int, error) {
	var uid int
	err := s.locks.WithWrite(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		uid, err = meta.nextUID()
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		return nil
	})
	return uid, err
}

func (s *Store) GetFolderUID(user, folder string) (string, error) {
	var id string
	err := s.locks.WithRead(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		id = meta.folderUID
		return nil
	})
	return id, err
}

func (s *Store) SetSubscribed(user, folder string, subscribed bool) error {
	return s.locks.WithWrite(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		meta.subscribed = subscribed
		return meta.save()
	})
}

func (s *Store) IsSubscribed(user, folder string) (bool, error) {
	var subscribed bool
	err := s.locks.WithRead(user, func() error {
		meta, err := loadOrInitMetadata(s.folderDir(user, folder))
		if err != nil {
			return mailerr.New(mailerr.Storage, err)
		}
		subscribed = meta.subscribed
		return nil
	})
	return subscribed, err
}

// ListFolders walks a user's whole tree and returns every folder,
// INBOX always included, sorted alphabetically.
func (s *Store) ListFolders(user string) ([]FolderInfo, error) {
	var out []FolderInfo
	err := s.locks.WithRead(user, func() error {
		root := s.userDir(user)
		seen := map[string]bool{Inbox: true}
		out = append(out, FolderInfo{Name: Inbox})

		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if path == root || !d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if !seen[name] {
				seen[name] = true
				out = append(out, FolderInfo{Name: name})
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return mailerr.New(mailerr.Storage, err)
		}

		for i := range out {
			children, _ := os.ReadDir(filepath.Join(root, filepath.FromSlash(out[i].Name)))
			for _, c := range children {
				if c.IsDir() {
					out[i].HasChildren = true
					break
				}
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

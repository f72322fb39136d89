package store

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const metadataFileName = ".metadata"

// metadata is the persistent record for one folder: the highest UID
// ever allocated, the folder's opaque identity, its subscription bit,
// and a UID -> flag-set map. It is rewritten in full on every mutation
// (temp file + rename, so a crash mid-write cannot corrupt LAST_UID).
type metadata struct {
	path       string
	lastUID    int
	folderUID  string
	subscribed bool
	flags      map[int]map[string]bool
}

func loadOrInitMetadata(folderDir string) (*metadata, error) {
	path := filepath.Join(folderDir, metadataFileName)

	m, err := readMetadata(path)
	if err == nil {
		return m, nil
	}
	if !os.IsNotExist(err) {
		// Parse errors are logged and treated as "no metadata": restart
		// from LAST_UID=0 with an empty flag map. This is an accepted
		// design weakness, not a bug.
		log.Printf("store: failed to read metadata %s, starting fresh: %v", path, err)
	}

	m = &metadata{
		path:      path,
		folderUID: uuid.NewString(),
		flags:     make(map[int]map[string]bool),
	}
	if err := os.MkdirAll(folderDir, 0o755); err != nil {
		return nil, err
	}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

func readMetadata(path string) (*metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m := &metadata{
		path:  path,
		flags: make(map[int]map[string]bool),
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			continue
		case line == "[SUBSCRIBED]":
			m.subscribed = true
		case strings.HasPrefix(line, "LAST_UID="):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "LAST_UID="))
			if err != nil {
				return nil, fmt.Errorf("invalid LAST_UID line %q: %w", line, err)
			}
			m.lastUID = n
		case strings.HasPrefix(line, "FOLDER_UID="):
			m.folderUID = strings.TrimPrefix(line, "FOLDER_UID=")
		default:
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("malformed metadata line %q", line)
			}
			uid, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("invalid UID in line %q: %w", line, err)
			}
			m.flags[uid] = flagSetFromString(parts[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if m.folderUID == "" {
		m.folderUID = uuid.NewString()
	}
	return m, nil
}

func flagSetFromString(s string) map[string]bool {
	set := make(map[string]bool)
	if s == "" {
		return set
	}
	for _, flag := range strings.Split(s, "|") {
		if flag != "" {
			set[flag] = true
		}
	}
	return set
}

func flagSetToString(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for flag := range set {
		names = append(names, flag)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// save rewrites the whole metadata file under a temp-name-then-rename
// swap so LAST_UID can never be lost to a half-written file.
func (m *metadata) save() error {
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "LAST_UID=%d\n", m.lastUID)
	fmt.Fprintf(w, "FOLDER_UID=%s\n", m.folderUID)
	if m.subscribed {
		fmt.Fprintln(w, "[SUBSCRIBED]")
	}

	uids := make([]int, 0, len(m.flags))
	for uid := range m.flags {
		uids = append(uids, uid)
	}
	sort.Ints(uids)
	for _, uid := range uids {
		fmt.Fprintf(w, "%d=%s\n", uid, flagSetToString(m.flags[uid]))
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

func (m *metadata) nextUID() (int, error) {
	m.lastUID++
	if err := m.save(); err != nil {
		m.lastUID--
		return 0, err
	}
	return m.lastUID, nil
}

func (m *metadata) getFlags(uid int) map[string]bool {
	set, ok := m.flags[uid]
	if !ok {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(set))
	for k := range set {
		out[k] = true
	}
	return out
}

func (m *metadata) setFlags(uid int, set map[string]bool) error {
	clone := make(map[string]bool, len(set))
	for k, v := range set {
		if v {
			clone[k] = true
		}
	}
	m.flags[uid] = clone
	return m.save()
}

func (m *metadata) updateFlag(uid int, flag string, add bool) error {
	set := m.flags[uid]
	if set == nil {
		set = make(map[string]bool)
	}
	if add {
		set[flag] = true
	} else {
		delete(set, flag)
	}
	m.flags[uid] = set
	return m.save()
}

func (m *metadata) removeUID(uid int) error {
	delete(m.flags, uid)
	return m.save()
}

// package archive reads and rewrites the per-playlist download ledger.
//
// The ledger is the yt-dlp --download-archive file: one record per fetched item,
// "<extractor> <item_id>" optionally followed by trailing fields. Appends are made by
// the fetcher itself; this package only loads and prunes.
package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// FileName is the ledger's name inside each playlist directory.
const FileName = "archive.txt"

// Store locates ledgers under {root}/{owner}/{playlist_id}/archive.txt.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the library root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the playlist's local directory.
func (s *Store) Dir(key models.PlaylistKey) string {
	return filepath.Join(s.root, key.Owner, key.PlaylistID)
}

// Path returns the playlist's ledger path, whether or not it exists yet.
func (s *Store) Path(key models.PlaylistKey) string {
	return filepath.Join(s.Dir(key), FileName)
}

// Load returns the set of archived item IDs. A missing ledger is an empty set.
func (s *Store) Load(key models.PlaylistKey) (models.ItemSet, error) {
	f, err := os.Open(s.Path(key))
	if os.IsNotExist(err) {
		return models.NewItemSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %v", shared.ErrStorage, key, err)
	}
	defer f.Close()

	ids, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read archive %s: %v", shared.ErrStorage, key, err)
	}
	return ids, nil
}

// Parse reads ledger records from r. Blank lines and lines with fewer than two
// fields are skipped.
func Parse(r io.Reader) (models.ItemSet, error) {
	ids := models.NewItemSet()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if id, ok := recordID(scanner.Text()); ok {
			ids.Add(id)
		}
	}
	return ids, scanner.Err()
}

// Remove drops every record whose item ID is in ids and reports how many lines were dropped.
//
// The ledger is replaced through a temp file and rename, so readers see either the old or
// the new contents. Duplicate records of a kept ID are collapsed to the first occurrence.
// Nothing is written when no line matches.
func (s *Store) Remove(key models.PlaylistKey, ids models.ItemSet) (int, error) {
	if ids.Len() == 0 {
		return 0, nil
	}

	path := s.Path(key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read archive %s: %v", shared.ErrStorage, key, err)
	}

	kept, removed := prune(data, ids)
	if removed == 0 {
		return 0, nil
	}

	if err := replaceFile(path, kept); err != nil {
		return 0, fmt.Errorf("%w: rewrite archive %s: %v", shared.ErrStorage, key, err)
	}
	return removed, nil
}

func prune(data []byte, ids models.ItemSet) ([]byte, int) {
	var (
		out     bytes.Buffer
		seen    = models.NewItemSet()
		removed int
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		id, ok := recordID(line)
		switch {
		case !ok:
			if strings.TrimSpace(line) == "" {
				continue
			}
		case ids.Has(id):
			removed++
			continue
		case seen.Has(id):
			continue
		default:
			seen.Add(id)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes(), removed
}

func recordID(line string) (models.ItemID, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	return models.ItemID(fields[1]), true
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+FileName+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if info, err := os.Stat(path); err == nil {
		if err := tmp.Chmod(info.Mode().Perm()); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

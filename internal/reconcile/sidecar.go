package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/goccy/go-json"
)

// SidecarSuffix is appended to a media stem by yt-dlp's --write-info-json.
const SidecarSuffix = ".info.json"

// Sidecar is an item's metadata file and the stem it shares with its media.
type Sidecar struct {
	ID   models.ItemID
	Stem string // file name without SidecarSuffix
	Path string
}

type sidecarDocument struct {
	ID string `json:"id"`
}

// ReadSidecars returns every parseable sidecar in dir, sorted by stem.
//
// Sidecars that cannot be read or carry no id are skipped; the second return value
// counts them.
func ReadSidecars(dir string) ([]Sidecar, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}

	var (
		out     []Sidecar
		skipped int
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, SidecarSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			skipped++
			continue
		}
		var doc sidecarDocument
		if err := json.Unmarshal(data, &doc); err != nil || doc.ID == "" {
			skipped++
			continue
		}
		out = append(out, Sidecar{
			ID:   models.ItemID(doc.ID),
			Stem: strings.TrimSuffix(name, SidecarSuffix),
			Path: path,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stem < out[j].Stem })
	return out, skipped, nil
}

// deleteResult counts files removed while applying removals.
type deleteResult struct {
	removed int
	failed  int
}

// removeItemFiles deletes every file in dir sharing a stem with a sidecar whose id is in ids,
// the sidecar included. Failures are logged and counted, never returned.
//
// A file belongs to the sidecar with the longest stem it extends, so removing "Band - Intro"
// leaves "Band - Intro. Live" and its media alone.
func removeItemFiles(dir string, ids models.ItemSet, logger *log.Logger) (deleteResult, error) {
	var res deleteResult

	sidecars, _, err := ReadSidecars(dir)
	if err != nil {
		return res, fmt.Errorf("read sidecars: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("read playlist directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sc, ok := owningSidecar(sidecars, entry.Name())
		if !ok || !ids.Has(sc.ID) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			res.failed++
			logger.Warn("failed to delete file", "item_id", sc.ID, "path", path, "error", err)
			continue
		}
		res.removed++
		logger.Debug("deleted file", "item_id", sc.ID, "path", path)
	}
	return res, nil
}

// owningSidecar returns the sidecar with the longest stem that name extends with a ".".
func owningSidecar(sidecars []Sidecar, name string) (Sidecar, bool) {
	var (
		best  Sidecar
		found bool
	)
	for _, sc := range sidecars {
		if !strings.HasPrefix(name, sc.Stem+".") {
			continue
		}
		if !found || len(sc.Stem) > len(best.Stem) {
			best, found = sc, true
		}
	}
	return best, found
}

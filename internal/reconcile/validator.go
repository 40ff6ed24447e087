package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// DefaultMediaExtensions is used when the configuration lists none.
var DefaultMediaExtensions = []string{"mp3", "m4a", "opus", "ogg", "flac", "wav", "aac", "webm", "mp4", "mkv"}

// Validator checks a playlist directory for local integrity problems. It never mutates anything.
type Validator struct {
	store      *archive.Store
	extensions map[string]struct{}
}

// NewValidator treats files with one of extensions (no leading dot, any case) as media.
func NewValidator(store *archive.Store, extensions []string) *Validator {
	if len(extensions) == 0 {
		extensions = DefaultMediaExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Validator{store: store, extensions: exts}
}

// Validate reports a missing directory and stops there; otherwise it reports zero-byte media
// files, resolving their item IDs through sidecars where possible.
//
// An error is returned only when the directory exists but cannot be read.
func (v *Validator) Validate(key models.PlaylistKey) (*models.ValidationReport, error) {
	report := &models.ValidationReport{Key: key}
	dir := v.store.Dir(key)

	info, err := os.Stat(dir)
	if os.IsNotExist(err) || (err == nil && !info.IsDir()) {
		report.Add(models.IssueMissingDirectory, 1, "playlist directory %s does not exist", dir)
		v.record(report)
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", shared.ErrStorage, dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", shared.ErrStorage, dir, err)
	}

	var empty []string
	for _, entry := range entries {
		if entry.IsDir() || !v.isMedia(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if fi.Size() == 0 {
			empty = append(empty, entry.Name())
		}
	}
	if len(empty) == 0 {
		return report, nil
	}

	sort.Strings(empty)
	issue := report.Add(models.IssueZeroByteFiles, len(empty), "%d zero-byte media file(s)", len(empty))
	issue.Files = empty
	issue.Items = v.resolve(dir, empty)
	v.record(report)
	return report, nil
}

func (v *Validator) isMedia(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	_, ok := v.extensions[ext]
	return ok
}

// resolve maps media files back to item IDs through the sidecar sharing their stem.
func (v *Validator) resolve(dir string, files []string) []models.ItemID {
	sidecars, _, err := ReadSidecars(dir)
	if err != nil || len(sidecars) == 0 {
		return nil
	}
	byStem := make(map[string]models.ItemID, len(sidecars))
	for _, sc := range sidecars {
		byStem[sc.Stem] = sc.ID
	}

	seen := models.NewItemSet()
	for _, name := range files {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if id, ok := byStem[stem]; ok {
			seen.Add(id)
		}
	}
	return seen.Sorted()
}

func (v *Validator) record(report *models.ValidationReport) {
	for _, issue := range report.Issues {
		metrics.ValidationIssuesTotal.WithLabelValues(string(issue.Kind)).Inc()
	}
}

package reconcile

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/models"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func TestValidate(t *testing.T) {
	t.Run("missing directory stops further checks", func(t *testing.T) {
		store := archive.NewStore(t.TempDir())
		report, err := NewValidator(store, nil).Validate(key)
		if err != nil {
			t.Fatalf("Validate() failed: %v", err)
		}
		if len(report.Issues) != 1 || report.Issues[0].Kind != models.IssueMissingDirectory {
			t.Fatalf("expected exactly missing_directory, got %+v", report.Issues)
		}
	})

	t.Run("path is a file", func(t *testing.T) {
		store := archive.NewStore(t.TempDir())
		if err := os.MkdirAll(filepath.Dir(store.Dir(key)), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(store.Dir(key), nil, 0644); err != nil {
			t.Fatal(err)
		}
		report, err := NewValidator(store, nil).Validate(key)
		if err != nil {
			t.Fatalf("Validate() failed: %v", err)
		}
		if len(report.Issues) != 1 || report.Issues[0].Kind != models.IssueMissingDirectory {
			t.Fatalf("expected exactly missing_directory, got %+v", report.Issues)
		}
	})

	t.Run("one zero-byte and one non-empty file", func(t *testing.T) {
		store := archive.NewStore(t.TempDir())
		dir := store.Dir(key)
		tu.WriteMediaItem(t, dir, "A", 64)
		tu.WriteMediaItem(t, dir, "B", 0)

		report, err := NewValidator(store, nil).Validate(key)
		if err != nil {
			t.Fatalf("Validate() failed: %v", err)
		}
		if len(report.Issues) != 1 {
			t.Fatalf("expected one issue, got %+v", report.Issues)
		}
		issue := report.Issues[0]
		if issue.Kind != models.IssueZeroByteFiles || issue.Count != 1 {
			t.Errorf("got kind=%s count=%d, want zero_byte_files count=1", issue.Kind, issue.Count)
		}
		if len(issue.Files) != 1 || issue.Files[0] != tu.MediaStem("B")+".mp3" {
			t.Errorf("Files = %v", issue.Files)
		}
		if !report.RepairIDs().Equal(models.NewItemSet("B")) {
			t.Errorf("RepairIDs() = %v, want [B]", report.RepairIDs().Sorted())
		}
	})

	t.Run("non-media files are ignored", func(t *testing.T) {
		store := archive.NewStore(t.TempDir())
		dir := store.Dir(key)
		tu.WriteMediaItem(t, dir, "A", 64)
		tu.WriteArchive(t, store.Path(key))
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644); err != nil {
			t.Fatal(err)
		}

		report, err := NewValidator(store, nil).Validate(key)
		if err != nil {
			t.Fatalf("Validate() failed: %v", err)
		}
		if !report.Empty() {
			t.Errorf("expected a clean report, got %+v", report.Issues)
		}
	})

	t.Run("configured extensions", func(t *testing.T) {
		store := archive.NewStore(t.TempDir())
		dir := store.Dir(key)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{"a.MP3", "b.opus", "c.flac"} {
			if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
				t.Fatal(err)
			}
		}

		report, err := NewValidator(store, []string{".mp3", "opus"}).Validate(key)
		if err != nil {
			t.Fatalf("Validate() failed: %v", err)
		}
		if len(report.Issues) != 1 || report.Issues[0].Count != 2 {
			t.Fatalf("expected two zero-byte files, got %+v", report.Issues)
		}
		if len(report.Issues[0].Items) != 0 {
			t.Errorf("files without sidecars should not resolve items, got %v", report.Issues[0].Items)
		}
	})
}

func TestValidateIsReadOnly(t *testing.T) {
	store := archive.NewStore(t.TempDir())
	dir := store.Dir(key)
	media := tu.WriteMediaItem(t, dir, "B", 0)

	if _, err := NewValidator(store, nil).Validate(key); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	tu.AssertFileExists(t, media)
}

func TestReadSidecars(t *testing.T) {
	dir := t.TempDir()
	tu.WriteMediaItem(t, dir, "A", 1)
	tu.WriteMediaItem(t, dir, "B", 1)
	for name, body := range map[string]string{
		"broken.info.json": "{not json",
		"noid.info.json":   `{"title": "x"}`,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	sidecars, skipped, err := ReadSidecars(dir)
	if err != nil {
		t.Fatalf("ReadSidecars() failed: %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(sidecars) != 2 || sidecars[0].ID != "A" || sidecars[1].ID != "B" {
		t.Fatalf("unexpected sidecars: %+v", sidecars)
	}
	if sidecars[0].Stem != tu.MediaStem("A") {
		t.Errorf("Stem = %q", sidecars[0].Stem)
	}

	if _, _, err := ReadSidecars(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestRemoveItemFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("Song.info.json", `{"id": "X"}`)
	write("Song.mp3", "x")
	write("Song.webp", "x")
	write("Song (remix).info.json", `{"id": "Y"}`)
	write("Song (remix).mp3", "y")

	res, err := removeItemFiles(dir, models.NewItemSet("X"), log.New(io.Discard))
	if err != nil {
		t.Fatalf("removeItemFiles() failed: %v", err)
	}
	if res.removed != 3 || res.failed != 0 {
		t.Errorf("removed=%d failed=%d, want 3 and 0", res.removed, res.failed)
	}
	tu.AssertFileMissing(t, filepath.Join(dir, "Song.mp3"))
	tu.AssertFileMissing(t, filepath.Join(dir, "Song.webp"))
	tu.AssertFileExists(t, filepath.Join(dir, "Song (remix).mp3"))
	tu.AssertFileExists(t, filepath.Join(dir, "Song (remix).info.json"))

	again, err := removeItemFiles(dir, models.NewItemSet("X"), log.New(io.Discard))
	if err != nil {
		t.Fatalf("second removeItemFiles() failed: %v", err)
	}
	if again.removed != 0 {
		t.Errorf("second pass removed %d files, want 0", again.removed)
	}
}

func TestRemoveItemFilesKeepsLongerStems(t *testing.T) {
	tests := []struct {
		name    string
		remove  models.ItemID
		removed int
		gone    []string
		kept    []string
	}{
		{
			name:    "shorter stem removed",
			remove:  "D",
			removed: 2,
			gone:    []string{"Band - Intro.mp3", "Band - Intro.info.json"},
			kept:    []string{"Band - Intro. Live.mp3", "Band - Intro. Live.info.json"},
		},
		{
			name:    "longer stem removed",
			remove:  "A",
			removed: 2,
			gone:    []string{"Band - Intro. Live.mp3", "Band - Intro. Live.info.json"},
			kept:    []string{"Band - Intro.mp3", "Band - Intro.info.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string]string{
				"Band - Intro.info.json":       `{"id": "D"}`,
				"Band - Intro.mp3":             "d",
				"Band - Intro. Live.info.json": `{"id": "A"}`,
				"Band - Intro. Live.mp3":       "a",
			}
			for name, body := range files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
					t.Fatal(err)
				}
			}

			res, err := removeItemFiles(dir, models.NewItemSet(tt.remove), log.New(io.Discard))
			if err != nil {
				t.Fatalf("removeItemFiles() failed: %v", err)
			}
			if res.removed != tt.removed {
				t.Errorf("removed=%d, want %d", res.removed, tt.removed)
			}
			for _, name := range tt.gone {
				tu.AssertFileMissing(t, filepath.Join(dir, name))
			}
			for _, name := range tt.kept {
				tu.AssertFileExists(t, filepath.Join(dir, name))
			}
		})
	}
}

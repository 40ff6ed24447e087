// package testing contains shared testing utilities
package testing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// MediaStem is the file stem the fake fetcher and fixtures use for an item.
func MediaStem(id models.ItemID) string {
	return fmt.Sprintf("Uploader - Title %s", id)
}

// WriteMediaItem writes a media file of size bytes plus its .info.json sidecar into dir,
// returning the media path.
func WriteMediaItem(t *testing.T, dir string, id models.ItemID, size int) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	stem := MediaStem(id)
	media := filepath.Join(dir, stem+".mp3")
	if err := os.WriteFile(media, []byte(strings.Repeat("x", size)), 0644); err != nil {
		t.Fatalf("Failed to write media %s: %v", media, err)
	}
	sidecar := filepath.Join(dir, stem+".info.json")
	body := fmt.Sprintf(`{"id": %q, "title": "Title %s", "uploader": "Uploader"}`, id, id)
	if err := os.WriteFile(sidecar, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write sidecar %s: %v", sidecar, err)
	}
	return media
}

// WriteArchive writes a ledger containing one youtube record per id.
func WriteArchive(t *testing.T, path string, ids ...models.ItemID) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
	}
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "youtube %s\n", id)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write archive %s: %v", path, err)
	}
}

package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/gofrs/flock"
)

// FileLocker combines an in-process lock with an advisory flock on
// {root}/{owner}/.{playlist_id}.lock, so that a CLI reconcile and a running daemon
// exclude each other.
type FileLocker struct {
	root  string
	local *MemoryLocker
}

func NewFileLocker(root string) *FileLocker {
	return &FileLocker{root: root, local: NewMemoryLocker()}
}

// Path returns the lock file for key. It sits beside the playlist directory, not inside it.
func (f *FileLocker) Path(key models.PlaylistKey) string {
	return filepath.Join(f.root, key.Owner, "."+key.PlaylistID+".lock")
}

func (f *FileLocker) TryAcquire(ctx context.Context, key models.PlaylistKey) (Release, error) {
	releaseLocal, err := f.local.TryAcquire(ctx, key)
	if err != nil {
		return nil, err
	}

	path := f.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		releaseLocal()
		return nil, fmt.Errorf("%w: create lock directory: %v", shared.ErrStorage, err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("%w: lock %s: %v", shared.ErrStorage, path, err)
	}
	if !ok {
		releaseLocal()
		return nil, contended(key)
	}

	return once(func() error {
		defer releaseLocal()
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("unlock %s: %w", path, err)
		}
		return nil
	}), nil
}

package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/remote"
	"github.com/desertthunder/plsync/internal/shared"
)

// UserStore is the user table as the lifecycle needs it.
type UserStore interface {
	GetByName(name string) (*models.User, error)
	SetActive(name string, active bool) error
}

// PlaylistStore is the playlist table as the lifecycle needs it.
type PlaylistStore interface {
	Create(playlist *models.Playlist) error
	GetByKey(owner, playlistID string) (*models.Playlist, error)
	Update(playlist *models.Playlist) error
	Delete(id string) error
	DeactivateOrphans() (int, error)
}

// AccessChecker confirms a playlist URL is readable before it is tracked.
type AccessChecker interface {
	CheckAccessible(ctx context.Context, rawURL string) (*remote.PlaylistInfo, error)
}

// Lifecycle adds and retires tracked playlists. Local files are never touched here.
type Lifecycle struct {
	users     UserStore
	playlists PlaylistStore
	access    AccessChecker
	logger    *log.Logger
}

func NewLifecycle(users UserStore, playlists PlaylistStore, access AccessChecker, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.Default()
	}
	return &Lifecycle{users: users, playlists: playlists, access: access, logger: logger}
}

// AddPlaylist tracks rawURL for owner after checking it is accessible.
//
// A new playlist starts inactive and is activated by its first successful reconcile. Re-adding
// an existing (owner, playlist_id) reactivates it and refreshes its reference. An empty name
// falls back to the remote title.
func (l *Lifecycle) AddPlaylist(ctx context.Context, owner, rawURL, name string) (*models.Playlist, error) {
	user, err := l.users.GetByName(owner)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, fmt.Errorf("%w: user %s is inactive", shared.ErrInvalidInput, owner)
	}

	info, err := l.access.CheckAccessible(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = info.Title
	}
	if name == "" {
		name = info.PlaylistID
	}

	logger := shared.WithLogger(l.logger, "owner", owner, "playlist_id", info.PlaylistID)

	existing, err := l.playlists.GetByKey(owner, info.PlaylistID)
	switch {
	case err == nil:
		existing.SetName(name)
		existing.SetRemoteRef(info.URL)
		existing.SetActive(true)
		if err := l.playlists.Update(existing); err != nil {
			return nil, err
		}
		logger.Info("reactivated playlist", "name", name)
		return existing, nil
	case !errors.Is(err, shared.ErrPlaylistNotFound):
		return nil, err
	}

	playlist := models.NewPlaylist(0, owner, info.PlaylistID, name, info.URL)
	if err := l.playlists.Create(playlist); err != nil {
		return nil, err
	}
	logger.Info("added playlist", "name", name, "remote_count", info.Count)
	return playlist, nil
}

// RemovePlaylist stops tracking a playlist. Hard removal deletes the row; soft removal
// only clears its active flag.
func (l *Lifecycle) RemovePlaylist(owner, playlistID string, hard bool) error {
	playlist, err := l.playlists.GetByKey(owner, playlistID)
	if err != nil {
		return err
	}

	logger := shared.WithLogger(l.logger, "owner", owner, "playlist_id", playlistID)
	if hard {
		if err := l.playlists.Delete(playlist.ID()); err != nil {
			return err
		}
		logger.Info("deleted playlist record")
		return nil
	}

	playlist.SetActive(false)
	if err := l.playlists.Update(playlist); err != nil {
		return err
	}
	logger.Info("deactivated playlist")
	return nil
}

// DeactivateUser marks the user inactive and retires their playlists.
func (l *Lifecycle) DeactivateUser(name string) (int, error) {
	if err := l.users.SetActive(name, false); err != nil {
		return 0, err
	}
	l.logger.Info("deactivated user", "owner", name)
	return l.Sanitize()
}

// Sanitize deactivates every active playlist whose owner is inactive or missing.
func (l *Lifecycle) Sanitize() (int, error) {
	n, err := l.playlists.DeactivateOrphans()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info("deactivated orphaned playlists", "count", n)
	}
	return n, nil
}

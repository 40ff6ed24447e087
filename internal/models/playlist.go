package models

import (
	"fmt"
	"time"
)

// PlaylistKey identifies a playlist by its (owner, playlist_id) pair.
type PlaylistKey struct {
	Owner      string `json:"owner"`
	PlaylistID string `json:"playlist_id"`
}

// String formats the key as owner/playlist_id, which is also its relative directory.
func (k PlaylistKey) String() string {
	return k.Owner + "/" + k.PlaylistID
}

// Validate checks both segments are safe to use as directory names.
func (k PlaylistKey) Validate() error {
	if err := ValidateSegment("owner", k.Owner); err != nil {
		return err
	}
	return ValidateSegment("playlist_id", k.PlaylistID)
}

// Playlist is the status record for one mirrored playlist.
//
// Playlists are soft-deleted by clearing active; reactivation happens on re-add or after
// the first successful reconciliation.
type Playlist struct {
	base
	owner        string
	playlistID   string
	name         string
	remoteRef    string
	active       bool
	lastSyncedAt *time.Time
}

// NewPlaylist creates an inactive playlist pending its first successful sync.
func NewPlaylist(sequence int, owner, playlistID, name, remoteRef string) *Playlist {
	return &Playlist{
		base:       newBase(sequence),
		owner:      owner,
		playlistID: playlistID,
		name:       name,
		remoteRef:  remoteRef,
	}
}

func (p *Playlist) Owner() string { return p.owner }
func (p *Playlist) PlaylistID() string { return p.playlistID }
func (p *Playlist) Name() string { return p.name }
func (p *Playlist) RemoteRef() string { return p.remoteRef }
func (p *Playlist) Active() bool { return p.active }
func (p *Playlist) LastSyncedAt() *time.Time { return p.lastSyncedAt }
func (p *Playlist) Key() PlaylistKey { return PlaylistKey{Owner: p.owner, PlaylistID: p.playlistID} }
func (p *Playlist) SetName(name string) { p.name = name }
func (p *Playlist) SetRemoteRef(ref string) { p.remoteRef = ref }
func (p *Playlist) SetActive(active bool) { p.active = active }
func (p *Playlist) SetLastSyncedAt(t *time.Time) { p.lastSyncedAt = t }

// Validate checks the identity fields and remote reference.
func (p *Playlist) Validate() error {
	if err := p.Key().Validate(); err != nil {
		return err
	}
	if p.remoteRef == "" {
		return fmt.Errorf("remote_ref is required")
	}
	return nil
}

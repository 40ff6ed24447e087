package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const playlistColumns = `id, sequence, owner, playlist_id, name, remote_ref, active, last_synced_at, created_at, updated_at`

// PlaylistRepository implements models.Repository[*models.Playlist] and serves as the
// playlist status store for the reconciler and scan coordinator.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist with generated ID and sequence.
//
// Returns [shared.ErrAlreadyExists] when (owner, playlist_id) is taken, active or not.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	playlist.SetID(id)
	playlist.SetSequence(sequence)

	query := `
		INSERT INTO playlists (id, sequence, owner, playlist_id, name, remote_ref, active, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		playlist.Owner(),
		playlist.PlaylistID(),
		playlist.Name(),
		playlist.RemoteRef(),
		playlist.Active(),
		playlist.LastSyncedAt(),
		playlist.CreatedAt(),
		playlist.UpdatedAt(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: playlist %s", shared.ErrAlreadyExists, playlist.Key())
	}
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	return nil
}

// Get retrieves a playlist by ID
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = ?`
	return r.scanPlaylist(r.db.QueryRow(query, id), id)
}

// GetByKey retrieves a playlist by its (owner, playlist_id) identity, active or not.
func (r *PlaylistRepository) GetByKey(owner, playlistID string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE owner = ? AND playlist_id = ?`
	return r.scanPlaylist(r.db.QueryRow(query, owner, playlistID), owner+"/"+playlistID)
}

// Update modifies the mutable fields of an existing playlist
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	playlist.SetUpdatedAt(now)

	query := `
		UPDATE playlists
		SET name = ?, remote_ref = ?, active = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		playlist.Name(),
		playlist.RemoteRef(),
		playlist.Active(),
		playlist.LastSyncedAt(),
		now,
		playlist.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlist.ID()))
}

// Delete removes a playlist row permanently. Normal flow deactivates instead; see [PlaylistRepository.SetActive].
func (r *PlaylistRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id))
}

// List retrieves all playlists matching the given criteria.
//
// Supported criteria: "owner" (string), "active" (bool).
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE 1 = 1`
	args := []any{}

	if owner, ok := criteria["owner"].(string); ok && owner != "" {
		query += " AND owner = ?"
		args = append(args, owner)
	}

	if active, ok := criteria["active"].(bool); ok {
		query += " AND active = ?"
		args = append(args, active)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := r.scanPlaylist(rows, "")
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// ListActive returns every playlist with active = true, in sequence order.
func (r *PlaylistRepository) ListActive() ([]*models.Playlist, error) {
	return r.List(map[string]any{"active": true})
}

// SetActive sets the active flag for the playlist identified by (owner, playlist_id).
func (r *PlaylistRepository) SetActive(owner, playlistID string, active bool) error {
	query := `
		UPDATE playlists
		SET active = ?, updated_at = ?
		WHERE owner = ? AND playlist_id = ?
	`

	result, err := r.db.Exec(query, active, time.Now(), owner, playlistID)
	if err != nil {
		return fmt.Errorf("failed to update playlist status: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s/%s", shared.ErrPlaylistNotFound, owner, playlistID))
}

// MarkSynced records the completion time of the last successful reconciliation.
func (r *PlaylistRepository) MarkSynced(owner, playlistID string, at time.Time) error {
	query := `
		UPDATE playlists
		SET last_synced_at = ?, updated_at = ?
		WHERE owner = ? AND playlist_id = ?
	`

	result, err := r.db.Exec(query, at, time.Now(), owner, playlistID)
	if err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}

	return expectOne(result, fmt.Errorf("%w: %s/%s", shared.ErrPlaylistNotFound, owner, playlistID))
}

// DeactivateOrphans deactivates every active playlist whose owner is missing, deleted or inactive.
//
// Returns the number of playlists deactivated.
func (r *PlaylistRepository) DeactivateOrphans() (int, error) {
	query := `
		UPDATE playlists
		SET active = 0, updated_at = ?
		WHERE active = 1 AND owner NOT IN (
			SELECT name FROM users WHERE active = 1 AND deleted_at IS NULL
		)
	`

	result, err := r.db.Exec(query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate orphaned playlists: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

func (r *PlaylistRepository) scanPlaylist(row rowScanner, lookup string) (*models.Playlist, error) {
	var (
		id           string
		sequence     int
		owner        string
		playlistID   string
		name         string
		remoteRef    string
		active       bool
		lastSyncedAt sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(&id, &sequence, &owner, &playlistID, &name, &remoteRef, &active, &lastSyncedAt, &createdAt, &updatedAt)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, lookup)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	playlist := models.NewPlaylist(sequence, owner, playlistID, name, remoteRef)
	playlist.SetID(id)
	playlist.SetActive(active)
	playlist.SetCreatedAt(createdAt)
	playlist.SetUpdatedAt(updatedAt)
	if lastSyncedAt.Valid {
		playlist.SetLastSyncedAt(&lastSyncedAt.Time)
	}

	return playlist, nil
}

// Package models defines domain entities and value types for the playlist mirror service.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: Database-backed models with full lifecycle management
//   - [User] : Owners of mirrored playlists; deactivation cascades to their playlists at sanitize time
//   - [Playlist] : The (owner, playlist_id) status record with active flag and remote reference
//   - [SyncJob] : Outcome of one submitted reconciliation, queryable by ID
//
// 2. Value Types: Ephemeral, never persisted by this package
//   - [ItemID] and [ItemSet] : Item identity and set algebra used by the diff engine
//   - [RemoteItem] : One entry of a flat remote listing
//   - [DiffResult] : Added and removed item sets for one scan cycle
//   - [ValidationReport] : Local integrity issues for one playlist
//
// All persistent entities implement the [Model] interface providing ID, timestamps and validation.
package models

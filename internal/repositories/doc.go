// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
//
// Key Implementations:
//   - [UserRepository] : Owner accounts; soft deletes via deleted_at, deactivation via active
//   - [PlaylistRepository] : The playlist status store; (owner, playlist_id) is unique and rows are
//     deactivated instead of deleted during normal flow
//   - [JobRepository] : Reconciliation job outcomes, queryable by ID
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories

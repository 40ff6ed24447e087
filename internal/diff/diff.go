// package diff computes playlist membership changes between a remote listing and the local archive.
package diff

import "github.com/desertthunder/plsync/internal/models"

// Diff returns the IDs present remotely but not archived (Added) and the IDs archived
// but no longer present remotely (Removed). Neither input is modified.
func Diff(remote, archived models.ItemSet) models.DiffResult {
	return models.DiffResult{
		Added:   remote.Minus(archived),
		Removed: archived.Minus(remote),
	}
}

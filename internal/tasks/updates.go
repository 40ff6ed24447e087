package tasks

import (
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
)

// ProgressUpdate represents a progress event during a scan or reconciliation.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	LoadPlaylists Phase = iota
	ScanPlaylist
	QueueReconcile
	RunReconcile
	FinishReconcile
)

func (p Phase) String() string {
	switch p {
	case LoadPlaylists:
		return "load_playlists"
	case ScanPlaylist:
		return "scan_playlist"
	case QueueReconcile:
		return "queue_reconcile"
	case RunReconcile:
		return "run_reconcile"
	case FinishReconcile:
		return "finish_reconcile"
	default:
		return ""
	}
}

// sendProgress sends an update without blocking; a full or nil channel drops it.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func loadPlaylistsUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LoadPlaylists,
		Total:   total,
		Message: fmt.Sprintf("Scanning %d active playlist(s)...", total),
	}
}

func scanPlaylistUpdate(step, total int, res PlaylistScan) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] %s: %s", step, total, res.Key, res.Outcome)
	if res.Error != "" {
		msg += " (" + res.Error + ")"
	}
	return ProgressUpdate{
		Phase:   ScanPlaylist,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    res,
	}
}

func queueReconcileUpdate(job *models.SyncJob, removed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   QueueReconcile,
		Message: fmt.Sprintf("Queued %s (job %s, %d removal(s))", job.Key(), job.ID(), removed),
		Data:    job,
	}
}

func runReconcileUpdate(job *models.SyncJob, attempt, max int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RunReconcile,
		Step:    attempt,
		Total:   max,
		Message: fmt.Sprintf("Reconciling %s (attempt %d/%d)...", job.Key(), attempt, max),
		Data:    job,
	}
}

func finishReconcileUpdate(job *models.SyncJob) ProgressUpdate {
	msg := fmt.Sprintf("%s %s: fetched %d, removed %d entries / %d files", job.Key(), job.Status(), job.Fetched(), job.RemovedEntries(), job.RemovedFiles())
	if job.ErrorMessage() != "" {
		msg = fmt.Sprintf("%s %s: %s", job.Key(), job.Status(), job.ErrorMessage())
	}
	return ProgressUpdate{
		Phase:   FinishReconcile,
		Message: msg,
		Data:    job,
	}
}

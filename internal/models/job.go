package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a submitted reconciliation.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobRejected  JobStatus = "rejected" // another reconcile held the playlist lock
)

// Terminal reports whether the job will not change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobRejected
}

// SyncJob records one reconciliation request and its outcome.
type SyncJob struct {
	base
	owner          string
	playlistID     string
	status         JobStatus
	attempts       int
	fetched        int
	removedEntries int
	removedFiles   int
	errorMessage   string
	startedAt      *time.Time
	finishedAt     *time.Time
}

// NewSyncJob creates a queued job for the given playlist.
func NewSyncJob(sequence int, key PlaylistKey) *SyncJob {
	return &SyncJob{
		base:       newBase(sequence),
		owner:      key.Owner,
		playlistID: key.PlaylistID,
		status:     JobQueued,
	}
}

func (j *SyncJob) Owner() string { return j.owner }
func (j *SyncJob) PlaylistID() string { return j.playlistID }
func (j *SyncJob) Key() PlaylistKey { return PlaylistKey{Owner: j.owner, PlaylistID: j.playlistID} }
func (j *SyncJob) Status() JobStatus { return j.status }
func (j *SyncJob) Attempts() int { return j.attempts }
func (j *SyncJob) Fetched() int { return j.fetched }
func (j *SyncJob) RemovedEntries() int { return j.removedEntries }
func (j *SyncJob) RemovedFiles() int { return j.removedFiles }
func (j *SyncJob) ErrorMessage() string { return j.errorMessage }
func (j *SyncJob) StartedAt() *time.Time { return j.startedAt }
func (j *SyncJob) FinishedAt() *time.Time { return j.finishedAt }
func (j *SyncJob) SetStatus(s JobStatus) { j.status = s }
func (j *SyncJob) SetAttempts(n int) { j.attempts = n }
func (j *SyncJob) SetErrorMessage(m string) { j.errorMessage = m }
func (j *SyncJob) SetStartedAt(t *time.Time) { j.startedAt = t }
func (j *SyncJob) SetFinishedAt(t *time.Time) { j.finishedAt = t }

// SetCounts stores the counters reported by a completed reconciliation.
func (j *SyncJob) SetCounts(fetched, removedEntries, removedFiles int) {
	j.fetched = fetched
	j.removedEntries = removedEntries
	j.removedFiles = removedFiles
}

// Validate checks the job references a playlist and carries a known status.
func (j *SyncJob) Validate() error {
	if j.owner == "" || j.playlistID == "" {
		return fmt.Errorf("job requires owner and playlist_id")
	}
	switch j.status {
	case JobQueued, JobRunning, JobCompleted, JobFailed, JobRejected:
		return nil
	default:
		return fmt.Errorf("unknown job status %q", j.status)
	}
}

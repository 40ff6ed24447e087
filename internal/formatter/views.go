package formatter

import (
	"time"

	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/tasks"
)

// JobView is the serializable form of a [models.SyncJob].
type JobView struct {
	ID             string           `json:"id"`
	Owner          string           `json:"owner"`
	PlaylistID     string           `json:"playlist_id"`
	Status         models.JobStatus `json:"status"`
	Attempts       int              `json:"attempts"`
	Fetched        int              `json:"fetched"`
	RemovedEntries int              `json:"removed_entries"`
	RemovedFiles   int              `json:"removed_files"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
}

func NewJobView(j *models.SyncJob) JobView {
	return JobView{
		ID:             j.ID(),
		Owner:          j.Owner(),
		PlaylistID:     j.PlaylistID(),
		Status:         j.Status(),
		Attempts:       j.Attempts(),
		Fetched:        j.Fetched(),
		RemovedEntries: j.RemovedEntries(),
		RemovedFiles:   j.RemovedFiles(),
		Error:          j.ErrorMessage(),
		CreatedAt:      j.CreatedAt(),
		StartedAt:      j.StartedAt(),
		FinishedAt:     j.FinishedAt(),
	}
}

// PlaylistView is the serializable form of a [models.Playlist].
type PlaylistView struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner"`
	PlaylistID   string     `json:"playlist_id"`
	Name         string     `json:"name"`
	RemoteRef    string     `json:"remote_ref"`
	Active       bool       `json:"active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func NewPlaylistView(p *models.Playlist) PlaylistView {
	return PlaylistView{
		ID:           p.ID(),
		Owner:        p.Owner(),
		PlaylistID:   p.PlaylistID(),
		Name:         p.Name(),
		RemoteRef:    p.RemoteRef(),
		Active:       p.Active(),
		LastSyncedAt: p.LastSyncedAt(),
	}
}

// UserView is the serializable form of a [models.User].
type UserView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

func NewUserView(u *models.User) UserView {
	return UserView{ID: u.ID(), Name: u.Name(), Email: u.Email(), Active: u.Active()}
}

// Health is the combined readiness report served by /healthz and the health command.
type Health struct {
	Ready         bool               `json:"ready"`
	Binaries      []fetcher.Status   `json:"binaries"`
	Breaker       string             `json:"breaker,omitempty"`
	LastScan      *tasks.ScanSummary `json:"last_scan,omitempty"`
	LastScanError string             `json:"last_scan_error,omitempty"`
	CheckedAt     time.Time          `json:"checked_at"`
}

// NewHealth builds a report from binary statuses; readiness follows [fetcher.Ready].
func NewHealth(statuses []fetcher.Status, at time.Time) *Health {
	return &Health{Ready: fetcher.Ready(statuses), Binaries: statuses, CheckedAt: at.UTC()}
}

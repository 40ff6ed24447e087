package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/diff"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
)

// PlaylistSource yields the playlists a scan should inspect.
type PlaylistSource interface {
	ListActive() ([]*models.Playlist, error)
}

// RemoteLister returns the current remote membership of a playlist.
type RemoteLister interface {
	List(ctx context.Context, ref string) (*models.RemoteListing, error)
}

// Validator reports local integrity issues for a playlist.
type Validator interface {
	Validate(key models.PlaylistKey) (*models.ValidationReport, error)
}

// Submitter accepts reconciliations for later execution.
type Submitter interface {
	Submit(ctx context.Context, req reconcile.Request) (*models.SyncJob, error)
}

// PlaylistScan is the result of scanning one playlist.
type PlaylistScan struct {
	Key     models.PlaylistKey       `json:"key"`
	Outcome string                   `json:"outcome"` // one of the metrics.Scan* outcomes
	Added   int                      `json:"added"`
	Removed int                      `json:"removed"`
	Repairs int                      `json:"repairs"`
	Issues  []models.ValidationIssue `json:"issues,omitempty"`
	JobID   string                   `json:"job_id,omitempty"`
	Error   string                   `json:"error,omitempty"`
	order   int
}

// ScanSummary aggregates one scan pass.
type ScanSummary struct {
	Scanned   int            `json:"scanned"`
	Queued    int            `json:"queued"`
	InSync    int            `json:"in_sync"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Issues    int            `json:"issues"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Playlists []PlaylistScan `json:"playlists"`
}

// SkippedKeys returns the playlists whose remote was unavailable, to be retried next run.
func (s *ScanSummary) SkippedKeys() []models.PlaylistKey {
	var keys []models.PlaylistKey
	for _, p := range s.Playlists {
		if p.Outcome == metrics.ScanSkipped {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// ScanOpts configures a [Scanner].
type ScanOpts struct {
	Workers int  // playlists inspected concurrently (default: 1)
	Repair  bool // add zero-byte items to the removal set so they are fetched again
}

// Scanner implements the scan coordinator: validate, list, diff and submit for each playlist.
//
// A nil submitter turns the scan into a dry run: playlists that differ are reported as
// queued but nothing is submitted.
type Scanner struct {
	playlists PlaylistSource
	lister    RemoteLister
	store     *archive.Store
	validator Validator
	submitter Submitter
	opts      ScanOpts
	logger    *log.Logger
}

func NewScanner(playlists PlaylistSource, lister RemoteLister, store *archive.Store, validator Validator, submitter Submitter, opts ScanOpts, logger *log.Logger) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{
		playlists: playlists,
		lister:    lister,
		store:     store,
		validator: validator,
		submitter: submitter,
		opts:      opts,
		logger:    logger,
	}
}

// ScanAll scans every active playlist. Only failing to enumerate playlists, or cancellation,
// returns an error; per-playlist failures are recorded in the summary.
func (s *Scanner) ScanAll(ctx context.Context, progress chan<- ProgressUpdate) (*ScanSummary, error) {
	start := time.Now()
	summary := &ScanSummary{StartedAt: start.UTC()}

	playlists, err := s.playlists.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active playlists: %w", err)
	}
	sendProgress(progress, loadPlaylistsUpdate(len(playlists)))

	type scanJob struct {
		order    int
		playlist *models.Playlist
	}
	jobs := make(chan scanJob, len(playlists))
	results := make(chan PlaylistScan, len(playlists))

	var wg sync.WaitGroup
	for range s.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := s.Inspect(ctx, job.playlist)
				res.order = job.order
				results <- res
			}
		}()
	}

	for i, p := range playlists {
		jobs <- scanJob{order: i, playlist: p}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		summary.Playlists = append(summary.Playlists, res)
		summary.Scanned++
		summary.Issues += len(res.Issues)
		switch res.Outcome {
		case metrics.ScanQueued:
			summary.Queued++
		case metrics.ScanInSync:
			summary.InSync++
		case metrics.ScanSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		sendProgress(progress, scanPlaylistUpdate(summary.Scanned, len(playlists), res))
	}

	sort.Slice(summary.Playlists, func(i, j int) bool { return summary.Playlists[i].order < summary.Playlists[j].order })
	summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	metrics.RecordScan(summary.Queued, summary.InSync, summary.Skipped, summary.Failed, summary.Duration)
	s.logger.Info("scan complete",
		"scanned", summary.Scanned,
		"queued", summary.Queued,
		"in_sync", summary.InSync,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"issues", summary.Issues,
		"duration", summary.Duration,
	)
	return summary, nil
}

// Inspect validates, lists and diffs one playlist regardless of its active flag, and
// submits a reconciliation when it differs from the remote.
func (s *Scanner) Inspect(ctx context.Context, p *models.Playlist) PlaylistScan {
	key := p.Key()
	res := PlaylistScan{Key: key}
	logger := shared.WithLogger(s.logger, "owner", key.Owner, "playlist_id", key.PlaylistID)

	var repairs models.ItemSet
	if s.validator != nil {
		report, err := s.validator.Validate(key)
		switch {
		case err != nil:
			logger.Warn("validation failed", "error", err)
		case !report.Empty():
			res.Issues = report.Issues
			for _, issue := range report.Issues {
				logger.Warn("integrity issue", "kind", issue.Kind, "count", issue.Count, "detail", issue.Detail)
			}
			if s.opts.Repair {
				repairs = report.RepairIDs()
			}
		}
	}

	listing, err := s.lister.List(ctx, p.RemoteRef())
	if err != nil {
		res.Error = err.Error()
		if errors.Is(err, shared.ErrRemoteUnavailable) {
			res.Outcome = metrics.ScanSkipped
			logger.Warn("remote unavailable, retrying next scan", "error", err)
		} else {
			res.Outcome = metrics.ScanFailed
			logger.Error("remote listing failed", "error", err)
		}
		return res
	}

	archived, err := s.store.Load(key)
	if err != nil {
		res.Outcome = metrics.ScanFailed
		res.Error = err.Error()
		logger.Error("failed to load archive", "error", err)
		return res
	}

	d := diff.Diff(listing.IDs(), archived)
	res.Added = d.Added.Len()
	res.Removed = d.Removed.Len()

	removed := d.Removed
	if repairs.Len() > 0 {
		removed = removed.Union(repairs)
		res.Repairs = repairs.Len()
	}

	if d.Empty() && res.Repairs == 0 {
		res.Outcome = metrics.ScanInSync
		logger.Debug("playlist in sync", "items", archived.Len())
		return res
	}

	res.Outcome = metrics.ScanQueued
	if s.submitter == nil {
		return res
	}

	job, err := s.submitter.Submit(ctx, reconcile.Request{Key: key, RemoteRef: p.RemoteRef(), Removed: removed})
	if err != nil {
		res.Outcome = metrics.ScanFailed
		res.Error = err.Error()
		logger.Error("failed to submit reconciliation", "error", err)
		return res
	}
	res.JobID = job.ID()
	logger.Info("queued reconciliation", "job_id", job.ID(), "added", res.Added, "removed", res.Removed, "repairs", res.Repairs)
	return res
}

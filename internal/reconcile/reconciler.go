// package reconcile applies one sync cycle to one playlist: removals first, then a full
// fetch that lets the archive ledger skip what is already local.
//
// A Reconciler runs a single attempt per call. Bounded retries belong to the caller,
// which inspects failures with [shared.IsRetryable].
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/lock"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// StatusStore is the slice of the playlist store the reconciler writes.
type StatusStore interface {
	SetActive(owner, playlistID string, active bool) error
	MarkSynced(owner, playlistID string, at time.Time) error
}

// State is a playlist's position in the reconcile state machine.
type State int

const (
	Idle State = iota
	Reconciling
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reconciling:
		return "reconciling"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes one reconciliation. Added items are not listed: the fetcher skips
// whatever the ledger already holds.
type Request struct {
	Key       models.PlaylistKey
	RemoteRef string
	Removed   models.ItemSet
}

// Outcome carries the counters of a successful attempt.
type Outcome struct {
	Key            models.PlaylistKey `json:"key"`
	Fetched        int                `json:"fetched"`
	RemovedEntries int                `json:"removed_entries"`
	RemovedFiles   int                `json:"removed_files"`
	DeleteErrors   int                `json:"delete_errors"`
	ItemErrors     []string           `json:"item_errors,omitempty"`
	Duration       time.Duration      `json:"duration"`
}

// Option configures a [Reconciler].
type Option func(*Reconciler)

// WithLogger sets the logger used for every attempt.
func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout bounds a whole attempt. Zero leaves only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// WithClock overrides the time source used for last_synced_at.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler orchestrates a single playlist's sync cycle under its per-key lock.
type Reconciler struct {
	store   *archive.Store
	fetcher fetcher.Fetcher
	locker  lock.Locker
	status  StatusStore
	logger  *log.Logger
	timeout time.Duration
	now     func() time.Time

	// states holds the result of the latest cycle per key. It never returns to Idle, so it
	// grows with the set of playlists reconciled by this process.
	mu     sync.Mutex
	states map[models.PlaylistKey]State
}

func New(store *archive.Store, f fetcher.Fetcher, locker lock.Locker, status StatusStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		fetcher: f,
		locker:  locker,
		status:  status,
		logger:  log.Default(),
		now:     time.Now,
		states:  make(map[models.PlaylistKey]State),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State reports Reconciling while a cycle for key runs and the result of the latest cycle
// afterwards. Keys never reconciled by this Reconciler are Idle.
func (r *Reconciler) State(key models.PlaylistKey) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[key]
}

func (r *Reconciler) setState(key models.PlaylistKey, s State) {
	r.mu.Lock()
	r.states[key] = s
	r.mu.Unlock()
}

// Reconcile runs one attempt for req.Key.
//
// A held key fails fast with [shared.ErrReconcileInProgress] and leaves the state untouched.
// The lock is released before returning, including on timeout.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if req.RemoteRef == "" {
		return nil, fmt.Errorf("%w: remote reference required for %s", shared.ErrInvalidInput, req.Key)
	}

	release, err := r.locker.TryAcquire(ctx, req.Key)
	if err != nil {
		if errors.Is(err, shared.ErrReconcileInProgress) {
			metrics.LockContentionTotal.Inc()
		}
		return nil, err
	}
	defer func() {
		if err := release(); err != nil {
			r.logger.Warn("failed to release playlist lock", "owner", req.Key.Owner, "playlist_id", req.Key.PlaylistID, "error", err)
		}
	}()

	r.setState(req.Key, Reconciling)
	metrics.ReconcileAttemptsTotal.Inc()

	outcome, err := r.attempt(ctx, req)
	if err != nil {
		r.setState(req.Key, Failed)
		return nil, err
	}
	r.setState(req.Key, Completed)
	metrics.RecordReconcile(outcome.Fetched, outcome.RemovedEntries, outcome.RemovedFiles, outcome.DeleteErrors, outcome.Duration)
	return outcome, nil
}

func (r *Reconciler) attempt(parent context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	logger := shared.WithLogger(r.logger, "owner", req.Key.Owner, "playlist_id", req.Key.PlaylistID)

	ctx := parent
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.timeout)
		defer cancel()
	}

	outcome := &Outcome{Key: req.Key}
	dir := r.store.Dir(req.Key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create playlist directory %s: %v", shared.ErrStorage, dir, err)
	}

	if req.Removed.Len() > 0 {
		removed, err := r.store.Remove(req.Key, req.Removed)
		if err != nil {
			return nil, err
		}
		outcome.RemovedEntries = removed

		res, err := removeItemFiles(dir, req.Removed, logger)
		if err != nil {
			logger.Warn("could not walk sidecars for removal", "error", err)
			outcome.DeleteErrors++
		}
		outcome.RemovedFiles = res.removed
		outcome.DeleteErrors += res.failed
		logger.Info("applied removals", "requested", req.Removed.Len(), "archive_entries", removed, "files", res.removed, "delete_errors", outcome.DeleteErrors)
	}

	result, err := r.fetcher.Fetch(ctx, req.RemoteRef, dir, r.store.Path(req.Key), fetcher.FullFetch)
	if err != nil {
		return nil, r.fetchError(parent, ctx, req.Key, err)
	}
	outcome.Fetched = result.ItemsSeen
	outcome.ItemErrors = result.Errors
	for _, msg := range result.Errors {
		logger.Warn("item skipped by fetcher", "detail", msg)
	}

	if err := r.status.SetActive(req.Key.Owner, req.Key.PlaylistID, true); err != nil {
		return nil, fmt.Errorf("%w: mark %s active: %v", shared.ErrStorage, req.Key, err)
	}
	if err := r.status.MarkSynced(req.Key.Owner, req.Key.PlaylistID, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("%w: record sync time for %s: %v", shared.ErrStorage, req.Key, err)
	}

	outcome.Duration = time.Since(start)
	logger.Info("reconciled playlist", "fetched", outcome.Fetched, "removed_entries", outcome.RemovedEntries, "removed_files", outcome.RemovedFiles, "duration", outcome.Duration)
	return outcome, nil
}

// fetchError classifies a fetcher failure. Caller cancellation stays terminal; the attempt's
// own deadline and unclassified failures become retryable fetch errors.
func (r *Reconciler) fetchError(parent, ctx context.Context, key models.PlaylistKey, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if errors.Is(err, shared.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %w: %s exceeded %s", shared.ErrFetch, shared.ErrTimeout, key, r.timeout)
	}
	if errors.Is(err, shared.ErrFetch) || errors.Is(err, shared.ErrInvalidInput) || errors.Is(err, shared.ErrInvalidConfig) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", shared.ErrFetch, key, err)
}

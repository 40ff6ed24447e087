package tasks

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
)

var quiet = log.New(io.Discard)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createPlaylist(t *testing.T, repo *repositories.PlaylistRepository, owner, playlistID, ref string, active bool) *models.Playlist {
	t.Helper()

	p := models.NewPlaylist(0, owner, playlistID, playlistID, ref)
	p.SetActive(active)
	if err := repo.Create(p); err != nil {
		t.Fatalf("failed to create playlist %s/%s: %v", owner, playlistID, err)
	}
	return p
}

// listerFunc adapts a function to [RemoteLister].
type listerFunc func(ctx context.Context, ref string) (*models.RemoteListing, error)

func (f listerFunc) List(ctx context.Context, ref string) (*models.RemoteListing, error) {
	return f(ctx, ref)
}

// recordingSubmitter captures submitted requests.
type recordingSubmitter struct {
	mu   sync.Mutex
	reqs []reconcile.Request
	err  error
}

func (s *recordingSubmitter) Submit(ctx context.Context, req reconcile.Request) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.reqs = append(s.reqs, req)
	job := models.NewSyncJob(len(s.reqs), req.Key)
	job.SetID(shared.GenerateID())
	return job, nil
}

func (s *recordingSubmitter) requests() []reconcile.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reconcile.Request(nil), s.reqs...)
}

// scriptedAttempter returns errs in order, then succeeds. It can block each attempt on hold.
type scriptedAttempter struct {
	mu       sync.Mutex
	errs     []error
	always   error
	hold     chan struct{}
	calls    int
	reqs     []reconcile.Request
	inFlight int
	maxInFl  int
}

func (a *scriptedAttempter) Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
	a.mu.Lock()
	a.calls++
	a.reqs = append(a.reqs, req)
	a.inFlight++
	if a.inFlight > a.maxInFl {
		a.maxInFl = a.inFlight
	}
	hold := a.hold
	var err error
	switch {
	case a.always != nil:
		err = a.always
	case len(a.errs) > 0:
		err = a.errs[0]
		a.errs = a.errs[1:]
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &reconcile.Outcome{Key: req.Key, Fetched: 1, Duration: time.Millisecond}, nil
}

func (a *scriptedAttempter) snapshot() (calls, maxInFlight int, reqs []reconcile.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls, a.maxInFl, append([]reconcile.Request(nil), a.reqs...)
}

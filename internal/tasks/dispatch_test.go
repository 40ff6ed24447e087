package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/lock"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func keyN(n int) models.PlaylistKey {
	return models.PlaylistKey{Owner: "alice", PlaylistID: fmt.Sprintf("PL%d", n)}
}

// drain closes d and runs it until the queue is empty.
func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	d.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Serve(ctx); err != nil {
		t.Fatalf("Serve() failed: %v", err)
	}
}

func mustJob(t *testing.T, jobs *repositories.JobRepository, id string) *models.SyncJob {
	t.Helper()
	job, err := jobs.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return job
}

func TestDispatcherEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	jobs := repositories.NewJobRepository(db)
	playlists := repositories.NewPlaylistRepository(db)
	store := archive.NewStore(t.TempDir())
	remote := tu.NewFakeFetcher()

	p := createPlaylist(t, playlists, "alice", "PL1", "r1", true)
	for _, id := range []models.ItemID{"A", "B", "D"} {
		tu.WriteMediaItem(t, store.Dir(p.Key()), id, 8)
	}
	tu.WriteArchive(t, store.Path(p.Key()), "A", "B", "D")
	remote.SetRemote("r1", "A", "B", "C")

	rec := reconcile.New(store, remote, lock.NewMemoryLocker(), playlists, reconcile.WithLogger(quiet))
	dispatcher := NewDispatcher(rec, jobs, DispatchOpts{Workers: 2, Policy: RetryPolicy{MaxAttempts: 3}}, quiet)
	lister := listerFunc(func(ctx context.Context, ref string) (*models.RemoteListing, error) {
		return remote.List(ctx, ref, 0)
	})
	scanner := NewScanner(playlists, lister, store, reconcile.NewValidator(store, nil), dispatcher, ScanOpts{}, quiet)

	summary, err := scanner.ScanAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("ScanAll() failed: %v", err)
	}
	if summary.Queued != 1 {
		t.Fatalf("expected one queued playlist, got %+v", summary)
	}
	drain(t, dispatcher)

	job := mustJob(t, jobs, summary.Playlists[0].JobID)
	if job.Status() != models.JobCompleted {
		t.Fatalf("job status = %s (%s), want completed", job.Status(), job.ErrorMessage())
	}
	if job.Attempts() != 1 || job.Fetched() != 1 || job.RemovedEntries() != 1 || job.RemovedFiles() != 2 {
		t.Errorf("unexpected job counters: attempts=%d fetched=%d entries=%d files=%d",
			job.Attempts(), job.Fetched(), job.RemovedEntries(), job.RemovedFiles())
	}
	if job.StartedAt() == nil || job.FinishedAt() == nil {
		t.Error("job should record start and finish times")
	}

	ids, err := store.Load(p.Key())
	if err != nil {
		t.Fatal(err)
	}
	if !ids.Equal(models.NewItemSet("A", "B", "C")) {
		t.Errorf("archive = %v, want [A B C]", ids.Sorted())
	}

	synced, err := playlists.GetByKey("alice", "PL1")
	if err != nil {
		t.Fatal(err)
	}
	if !synced.Active() || synced.LastSyncedAt() == nil {
		t.Error("playlist should be active with a sync time")
	}

	// a second scan finds nothing to do
	again, err := scanner.ScanAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("second ScanAll() failed: %v", err)
	}
	if again.InSync != 1 || again.Queued != 0 {
		t.Errorf("expected in-sync after reconcile, got %+v", again)
	}
}

func TestDispatcherOutcomes(t *testing.T) {
	tests := []struct {
		name         string
		attempter    *scriptedAttempter
		wantStatus   models.JobStatus
		wantAttempts int
	}{
		{name: "completed", attempter: &scriptedAttempter{}, wantStatus: models.JobCompleted, wantAttempts: 1},
		{name: "retried then completed", attempter: &scriptedAttempter{errs: []error{fetchErr("flaky")}}, wantStatus: models.JobCompleted, wantAttempts: 2},
		{name: "failed after bound", attempter: &scriptedAttempter{always: fetchErr("down")}, wantStatus: models.JobFailed, wantAttempts: 3},
		{name: "rejected", attempter: &scriptedAttempter{always: fmt.Errorf("%w: busy", shared.ErrReconcileInProgress)}, wantStatus: models.JobRejected, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := repositories.NewJobRepository(setupTestDB(t))
			d := NewDispatcher(tt.attempter, jobs, DispatchOpts{Policy: RetryPolicy{MaxAttempts: 3}}, quiet)

			job, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(1), RemoteRef: "r1"})
			if err != nil {
				t.Fatalf("Submit() failed: %v", err)
			}
			if stored := mustJob(t, jobs, job.ID()); stored.Status() != models.JobQueued {
				t.Errorf("new job status = %s, want queued", stored.Status())
			}
			drain(t, d)

			stored, err := d.Job(job.ID())
			if err != nil {
				t.Fatalf("Job() failed: %v", err)
			}
			if stored.Status() != tt.wantStatus || stored.Attempts() != tt.wantAttempts {
				t.Errorf("job = %s after %d attempts, want %s after %d", stored.Status(), stored.Attempts(), tt.wantStatus, tt.wantAttempts)
			}
			if tt.wantStatus != models.JobCompleted && stored.ErrorMessage() == "" {
				t.Error("unsuccessful job should record its error")
			}
		})
	}
}

func TestDispatcherCoalescesPendingJobs(t *testing.T) {
	jobs := repositories.NewJobRepository(setupTestDB(t))
	attempter := &scriptedAttempter{}
	d := NewDispatcher(attempter, jobs, DispatchOpts{}, quiet)

	first, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(1), RemoteRef: "r1", Removed: models.NewItemSet("A")})
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(1), RemoteRef: "r1", Removed: models.NewItemSet("B")})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID() != second.ID() {
		t.Error("a pending playlist should not be queued twice")
	}
	drain(t, d)

	calls, _, reqs := attempter.snapshot()
	if calls != 1 {
		t.Fatalf("attempter called %d times, want 1", calls)
	}
	if !reqs[0].Removed.Equal(models.NewItemSet("A", "B")) {
		t.Errorf("merged removals = %v, want [A B]", reqs[0].Removed.Sorted())
	}
}

func TestDispatcherBoundsWorkers(t *testing.T) {
	jobs := repositories.NewJobRepository(setupTestDB(t))
	hold := make(chan struct{})
	attempter := &scriptedAttempter{hold: hold}
	d := NewDispatcher(attempter, jobs, DispatchOpts{Workers: 2}, quiet)

	for i := range 5 {
		if _, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(i), RemoteRef: "r"}); err != nil {
			t.Fatal(err)
		}
	}
	d.Close()

	done := make(chan error, 1)
	go func() { done <- d.Serve(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, peak, _ := attempter.snapshot(); peak == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("workers never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(hold)

	if err := <-done; err != nil {
		t.Fatalf("Serve() failed: %v", err)
	}
	calls, maxInFlight, _ := attempter.snapshot()
	if calls != 5 {
		t.Errorf("attempter called %d times, want 5", calls)
	}
	if maxInFlight > 2 {
		t.Errorf("%d jobs ran at once, want at most 2", maxInFlight)
	}
}

func TestDispatcherSubmitErrors(t *testing.T) {
	t.Run("closed", func(t *testing.T) {
		d := NewDispatcher(&scriptedAttempter{}, repositories.NewJobRepository(setupTestDB(t)), DispatchOpts{}, quiet)
		d.Close()
		d.Close()
		if _, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(1), RemoteRef: "r"}); !errors.Is(err, ErrDispatcherClosed) {
			t.Fatalf("expected ErrDispatcherClosed, got %v", err)
		}
	})

	t.Run("queue full", func(t *testing.T) {
		d := NewDispatcher(&scriptedAttempter{}, repositories.NewJobRepository(setupTestDB(t)), DispatchOpts{QueueSize: 1}, quiet)
		if _, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(1), RemoteRef: "r"}); err != nil {
			t.Fatal(err)
		}
		if _, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(2), RemoteRef: "r"}); !errors.Is(err, ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		d := NewDispatcher(&scriptedAttempter{}, repositories.NewJobRepository(setupTestDB(t)), DispatchOpts{}, quiet)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := d.Submit(ctx, reconcile.Request{Key: keyN(1), RemoteRef: "r"}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("invalid job", func(t *testing.T) {
		d := NewDispatcher(&scriptedAttempter{}, repositories.NewJobRepository(setupTestDB(t)), DispatchOpts{}, quiet)
		if _, err := d.Submit(context.Background(), reconcile.Request{RemoteRef: "r"}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestDispatcherServeStopsOnCancel(t *testing.T) {
	d := NewDispatcher(&scriptedAttempter{}, repositories.NewJobRepository(setupTestDB(t)), DispatchOpts{Workers: 3}, quiet)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestDispatcherProgress(t *testing.T) {
	progress := make(chan ProgressUpdate, 16)
	d := NewDispatcher(&scriptedAttempter{}, repositories.NewJobRepository(setupTestDB(t)), DispatchOpts{Progress: progress, Policy: RetryPolicy{MaxAttempts: 1}}, quiet)

	if _, err := d.Submit(context.Background(), reconcile.Request{Key: keyN(1), RemoteRef: "r"}); err != nil {
		t.Fatal(err)
	}
	drain(t, d)
	close(progress)

	var phases []Phase
	for update := range progress {
		phases = append(phases, update.Phase)
	}
	want := []Phase{QueueReconcile, RunReconcile, FinishReconcile}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phases[%d] = %v, want %v", i, phases[i], want[i])
		}
	}
}

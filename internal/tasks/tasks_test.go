package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

type scanFixture struct {
	store     *archive.Store
	playlists *repositories.PlaylistRepository
	remote    *tu.FakeFetcher
	submitter *recordingSubmitter
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	return &scanFixture{
		store:     archive.NewStore(t.TempDir()),
		playlists: repositories.NewPlaylistRepository(setupTestDB(t)),
		remote:    tu.NewFakeFetcher(),
		submitter: &recordingSubmitter{},
	}
}

func (f *scanFixture) scanner(opts ScanOpts) *Scanner {
	lister := listerFunc(func(ctx context.Context, ref string) (*models.RemoteListing, error) {
		return f.remote.List(ctx, ref, 0)
	})
	validator := reconcile.NewValidator(f.store, nil)
	return NewScanner(f.playlists, lister, f.store, validator, f.submitter, opts, quiet)
}

func TestScanAllIsolatesFailures(t *testing.T) {
	for _, workers := range []int{1, 3} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			f := newScanFixture(t)

			first := createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
			second := createPlaylist(t, f.playlists, "alice", "PL2", "r2", true)
			third := createPlaylist(t, f.playlists, "bob", "PL3", "r3", true)
			createPlaylist(t, f.playlists, "bob", "PL4", "r4", false)

			f.remote.SetRemote("r1", "A", "B")
			tu.WriteArchive(t, f.store.Path(first.Key()), "A")
			f.remote.FailRef("r2", fmt.Errorf("%w: playlist is private", shared.ErrRemoteUnavailable))
			f.remote.SetRemote("r3", "X")
			tu.WriteMediaItem(t, f.store.Dir(third.Key()), "X", 16)
			tu.WriteArchive(t, f.store.Path(third.Key()), "X")

			summary, err := f.scanner(ScanOpts{Workers: workers}).ScanAll(context.Background(), nil)
			if err != nil {
				t.Fatalf("ScanAll() failed: %v", err)
			}

			if summary.Scanned != 3 || summary.Queued != 1 || summary.Skipped != 1 || summary.InSync != 1 || summary.Failed != 0 {
				t.Fatalf("unexpected summary: %+v", summary)
			}
			if summary.Issues != 1 {
				t.Errorf("Issues = %d, want 1 (missing directory for the unreachable playlist)", summary.Issues)
			}

			want := []struct {
				key     models.PlaylistKey
				outcome string
			}{
				{first.Key(), metrics.ScanQueued},
				{second.Key(), metrics.ScanSkipped},
				{third.Key(), metrics.ScanInSync},
			}
			for i, w := range want {
				got := summary.Playlists[i]
				if got.Key != w.key || got.Outcome != w.outcome {
					t.Errorf("Playlists[%d] = %s %s, want %s %s", i, got.Key, got.Outcome, w.key, w.outcome)
				}
			}

			if skipped := summary.SkippedKeys(); len(skipped) != 1 || skipped[0] != second.Key() {
				t.Errorf("SkippedKeys() = %v", skipped)
			}

			reqs := f.submitter.requests()
			if len(reqs) != 1 || reqs[0].Key != first.Key() || reqs[0].RemoteRef != "r1" {
				t.Fatalf("unexpected submissions: %+v", reqs)
			}
			if reqs[0].Removed.Len() != 0 {
				t.Errorf("added-only playlist should submit no removals, got %v", reqs[0].Removed.Sorted())
			}
			if summary.Playlists[0].JobID == "" {
				t.Error("queued playlist should carry its job id")
			}
		})
	}
}

func TestScanAllPassesRemovals(t *testing.T) {
	f := newScanFixture(t)
	p := createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
	f.remote.SetRemote("r1", "A", "B", "C")
	tu.WriteArchive(t, f.store.Path(p.Key()), "A", "B", "D")

	summary, err := f.scanner(ScanOpts{}).ScanAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("ScanAll() failed: %v", err)
	}
	res := summary.Playlists[0]
	if res.Added != 1 || res.Removed != 1 {
		t.Errorf("Added=%d Removed=%d, want 1 and 1", res.Added, res.Removed)
	}
	reqs := f.submitter.requests()
	if len(reqs) != 1 || !reqs[0].Removed.Equal(models.NewItemSet("D")) {
		t.Fatalf("expected removal of D, got %+v", reqs)
	}
}

func TestScanAllRepair(t *testing.T) {
	tests := []struct {
		name        string
		repair      bool
		wantOutcome string
	}{
		{name: "repair enabled", repair: true, wantOutcome: metrics.ScanQueued},
		{name: "advisory only", repair: false, wantOutcome: metrics.ScanInSync},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScanFixture(t)
			p := createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
			f.remote.SetRemote("r1", "A", "B")
			tu.WriteMediaItem(t, f.store.Dir(p.Key()), "A", 0)
			tu.WriteMediaItem(t, f.store.Dir(p.Key()), "B", 32)
			tu.WriteArchive(t, f.store.Path(p.Key()), "A", "B")

			summary, err := f.scanner(ScanOpts{Repair: tt.repair}).ScanAll(context.Background(), nil)
			if err != nil {
				t.Fatalf("ScanAll() failed: %v", err)
			}
			res := summary.Playlists[0]
			if res.Outcome != tt.wantOutcome {
				t.Fatalf("Outcome = %s, want %s", res.Outcome, tt.wantOutcome)
			}
			if len(res.Issues) != 1 || res.Issues[0].Kind != models.IssueZeroByteFiles {
				t.Errorf("expected a zero_byte_files issue, got %+v", res.Issues)
			}

			reqs := f.submitter.requests()
			if !tt.repair {
				if len(reqs) != 0 {
					t.Errorf("issues alone must not submit, got %+v", reqs)
				}
				return
			}
			if len(reqs) != 1 || !reqs[0].Removed.Equal(models.NewItemSet("A")) {
				t.Fatalf("expected repair removal of A, got %+v", reqs)
			}
			if res.Repairs != 1 {
				t.Errorf("Repairs = %d, want 1", res.Repairs)
			}
		})
	}
}

func TestScanAllDryRun(t *testing.T) {
	f := newScanFixture(t)
	createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
	f.remote.SetRemote("r1", "A")

	lister := listerFunc(func(ctx context.Context, ref string) (*models.RemoteListing, error) {
		return f.remote.List(ctx, ref, 0)
	})
	scanner := NewScanner(f.playlists, lister, f.store, nil, nil, ScanOpts{}, quiet)

	summary, err := scanner.ScanAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("ScanAll() failed: %v", err)
	}
	if summary.Queued != 1 || summary.Playlists[0].JobID != "" {
		t.Errorf("dry run should report queued without a job, got %+v", summary.Playlists[0])
	}
}

func TestScanAllFailures(t *testing.T) {
	t.Run("listing error is failed, not skipped", func(t *testing.T) {
		f := newScanFixture(t)
		createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
		f.remote.FailRef("r1", errors.New("breaker exploded"))

		summary, err := f.scanner(ScanOpts{}).ScanAll(context.Background(), nil)
		if err != nil {
			t.Fatalf("ScanAll() failed: %v", err)
		}
		if summary.Failed != 1 || summary.Playlists[0].Error == "" {
			t.Errorf("expected one failed playlist with an error, got %+v", summary)
		}
	})

	t.Run("submit error", func(t *testing.T) {
		f := newScanFixture(t)
		createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
		createPlaylist(t, f.playlists, "alice", "PL2", "r2", true)
		f.remote.SetRemote("r1", "A")
		f.remote.SetRemote("r2", "B")
		f.submitter.err = errors.New("queue full")

		summary, err := f.scanner(ScanOpts{}).ScanAll(context.Background(), nil)
		if err != nil {
			t.Fatalf("ScanAll() failed: %v", err)
		}
		if summary.Failed != 2 || summary.Scanned != 2 {
			t.Errorf("expected both playlists failed, got %+v", summary)
		}
	})

	t.Run("playlist source error", func(t *testing.T) {
		db := setupTestDB(t)
		repo := repositories.NewPlaylistRepository(db)
		db.Close()

		scanner := NewScanner(repo, listerFunc(nil), archive.NewStore(t.TempDir()), nil, nil, ScanOpts{}, quiet)
		if _, err := scanner.ScanAll(context.Background(), nil); err == nil {
			t.Fatal("expected an error when playlists cannot be listed")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newScanFixture(t)
		createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := f.scanner(ScanOpts{}).ScanAll(ctx, nil); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestScanAllProgress(t *testing.T) {
	f := newScanFixture(t)
	createPlaylist(t, f.playlists, "alice", "PL1", "r1", true)
	createPlaylist(t, f.playlists, "alice", "PL2", "r2", true)
	f.remote.SetRemote("r1", "A")
	f.remote.SetRemote("r2")

	progress := make(chan ProgressUpdate, 16)
	if _, err := f.scanner(ScanOpts{}).ScanAll(context.Background(), progress); err != nil {
		t.Fatalf("ScanAll() failed: %v", err)
	}
	close(progress)

	var phases []Phase
	for update := range progress {
		phases = append(phases, update.Phase)
	}
	if len(phases) != 3 || phases[0] != LoadPlaylists || phases[1] != ScanPlaylist || phases[2] != ScanPlaylist {
		t.Errorf("unexpected phases: %v", phases)
	}
}

func TestSendProgressNeverBlocks(t *testing.T) {
	full := make(chan ProgressUpdate)
	sendProgress(full, ProgressUpdate{Message: "dropped"})
	sendProgress(nil, ProgressUpdate{Message: "ignored"})
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		LoadPlaylists:   "load_playlists",
		ScanPlaylist:    "scan_playlist",
		QueueReconcile:  "queue_reconcile",
		RunReconcile:    "run_reconcile",
		FinishReconcile: "finish_reconcile",
		Phase(99):       "",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

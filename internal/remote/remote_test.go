package remote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const validID = "PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf"

type fakeSource struct {
	mu       sync.Mutex
	listings map[string]*models.RemoteListing
	err      error
	calls    int
	limits   []int
}

func (f *fakeSource) Fetch(ctx context.Context, ref, targetDir, archivePath string, mode fetcher.Mode) (*fetcher.Result, error) {
	listing, err := f.List(ctx, ref, 0)
	if err != nil {
		return nil, err
	}
	return &fetcher.Result{Mode: mode, ItemsSeen: len(listing.Items), Listing: listing}, nil
}

func (f *fakeSource) List(ctx context.Context, ref string, limit int) (*models.RemoteListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	listing, ok := f.listings[ref]
	if !ok {
		return nil, errors.New("unexpected ref " + ref)
	}
	return listing, nil
}

func quietLogger() *strings.Builder { return &strings.Builder{} }

func newTestLister(src Source, failures uint32) *Lister {
	cfg := shared.RemoteConfig{RateLimit: 0, BreakerFailures: failures, BreakerTimeoutSeconds: 60}
	return NewLister(src, cfg, shared.NewLogger(quietLogger()))
}

func TestNormalizePlaylistURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "canonical", input: "https://www.youtube.com/playlist?list=" + validID, want: PlaylistURL(validID)},
		{name: "no scheme", input: "youtube.com/playlist?list=" + validID, want: PlaylistURL(validID)},
		{name: "http no www", input: "http://youtube.com/playlist?list=" + validID, want: PlaylistURL(validID)},
		{name: "extra params", input: "https://www.youtube.com/playlist?si=abc&list=" + validID + "&index=2", want: PlaylistURL(validID)},
		{name: "case insensitive host", input: "HTTPS://WWW.YOUTUBE.COM/playlist?list=" + validID, want: PlaylistURL(validID)},
		{name: "surrounding space", input: "  https://www.youtube.com/playlist?list=" + validID + " ", want: PlaylistURL(validID)},
		{name: "watch url", input: "https://www.youtube.com/watch?v=abc&list=" + validID, wantErr: true},
		{name: "short id", input: "https://www.youtube.com/playlist?list=PL123", wantErr: true},
		{name: "other host", input: "https://vimeo.com/playlist?list=" + validID, wantErr: true},
		{name: "missing list", input: "https://www.youtube.com/playlist?foo=bar", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, id, err := NormalizePlaylistURL(tt.input)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidPlaylistURL) {
					t.Fatalf("expected ErrInvalidPlaylistURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if id != validID {
				t.Errorf("got id %s, want %s", id, validID)
			}
		})
	}
}

func TestListerList(t *testing.T) {
	listing := &models.RemoteListing{
		PlaylistID: "PL1",
		Items:      []models.RemoteItem{{ID: "A"}, {ID: "B"}},
	}
	src := &fakeSource{listings: map[string]*models.RemoteListing{"ref": listing}}
	lister := newTestLister(src, 3)

	got, err := lister.List(context.Background(), "ref")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if !got.IDs().Equal(models.NewItemSet("A", "B")) {
		t.Errorf("unexpected ids %v", got.IDs().Sorted())
	}
}

func TestListerWrapsFailures(t *testing.T) {
	src := &fakeSource{err: errors.New("network unreachable")}
	lister := newTestLister(src, 0)

	_, err := lister.List(context.Background(), "ref")
	if !errors.Is(err, shared.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestListerBreakerOpens(t *testing.T) {
	src := &fakeSource{err: shared.ErrRemoteUnavailable}
	lister := newTestLister(src, 2)

	for i := 0; i < 2; i++ {
		if _, err := lister.List(context.Background(), "ref"); !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Fatalf("call %d: expected ErrRemoteUnavailable, got %v", i, err)
		}
	}
	if lister.State() != "open" {
		t.Fatalf("expected breaker open, got %s", lister.State())
	}

	_, err := lister.List(context.Background(), "ref")
	if !errors.Is(err, shared.ErrRemoteUnavailable) {
		t.Fatalf("expected open breaker to report ErrRemoteUnavailable, got %v", err)
	}
	if src.calls != 2 {
		t.Errorf("expected open breaker to short-circuit, source called %d times", src.calls)
	}
}

func TestListerCancelled(t *testing.T) {
	src := &fakeSource{listings: map[string]*models.RemoteListing{}}
	lister := NewLister(src, shared.RemoteConfig{RateLimit: 0.001}, shared.NewLogger(quietLogger()))

	// drain the single burst token so the next Wait blocks on the limiter
	if _, err := lister.List(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown ref")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lister.List(ctx, "missing"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCheckAccessible(t *testing.T) {
	url := PlaylistURL(validID)

	t.Run("Accessible", func(t *testing.T) {
		src := &fakeSource{listings: map[string]*models.RemoteListing{
			url: {PlaylistID: validID, Title: "Road Trip", Count: 12, Items: []models.RemoteItem{{ID: "A"}}},
		}}
		lister := newTestLister(src, 0)

		info, err := lister.CheckAccessible(context.Background(), "youtube.com/playlist?list="+validID)
		if err != nil {
			t.Fatalf("CheckAccessible returned error: %v", err)
		}
		if info.PlaylistID != validID || info.Title != "Road Trip" || info.Count != 12 || info.URL != url {
			t.Errorf("unexpected info %+v", info)
		}
		if len(src.limits) != 1 || src.limits[0] != 1 {
			t.Errorf("expected a single-entry listing, got limits %v", src.limits)
		}
	})

	t.Run("FallsBackToURLID", func(t *testing.T) {
		src := &fakeSource{listings: map[string]*models.RemoteListing{url: {Title: "Untitled"}}}
		lister := newTestLister(src, 0)

		info, err := lister.CheckAccessible(context.Background(), url)
		if err != nil {
			t.Fatalf("CheckAccessible returned error: %v", err)
		}
		if info.PlaylistID != validID {
			t.Errorf("expected id from URL, got %s", info.PlaylistID)
		}
	})

	t.Run("InvalidURL", func(t *testing.T) {
		lister := newTestLister(&fakeSource{}, 0)

		if _, err := lister.CheckAccessible(context.Background(), "https://example.com"); !errors.Is(err, shared.ErrInvalidPlaylistURL) {
			t.Fatalf("expected ErrInvalidPlaylistURL, got %v", err)
		}
	})

	t.Run("Private", func(t *testing.T) {
		src := &fakeSource{err: errors.New("playlist is private")}
		lister := newTestLister(src, 0)

		if _, err := lister.CheckAccessible(context.Background(), url); !errors.Is(err, shared.ErrRemoteUnavailable) {
			t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
		}
	})
}

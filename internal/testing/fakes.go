package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/models"
)

// FakeFetcher emulates yt-dlp against an in-memory set of remote playlists.
//
// A full fetch writes a media file and sidecar for every listed item missing from the
// archive and appends it to the archive, the way yt-dlp's --download-archive does.
type FakeFetcher struct {
	mu        sync.Mutex
	playlists map[string]*models.RemoteListing
	failures  map[string]error // per-ref errors for any mode
	failNext  int              // full fetches to fail with failErr before succeeding
	failErr   error
	hold      chan struct{} // when set, full fetches block until it is closed or ctx ends

	calls    int
	inFlight int
	maxInFl  int
	fetched  []models.ItemID
}

func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		playlists: make(map[string]*models.RemoteListing),
		failures:  make(map[string]error),
	}
}

// SetRemote replaces the remote membership of ref.
func (f *FakeFetcher) SetRemote(ref string, ids ...models.ItemID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	listing := &models.RemoteListing{PlaylistID: ref, Title: "Playlist " + ref, Count: len(ids)}
	for _, id := range ids {
		listing.Items = append(listing.Items, models.RemoteItem{ID: id, Title: "Title " + string(id), Uploader: "Uploader"})
	}
	f.playlists[ref] = listing
}

// FailRef makes every call for ref return err.
func (f *FakeFetcher) FailRef(ref string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[ref] = err
}

// FailNext makes the next n full fetches return err.
func (f *FakeFetcher) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
	f.failErr = err
}

// SetHold makes subsequent full fetches block until ch is closed or their context ends.
// A nil channel stops blocking.
func (f *FakeFetcher) SetHold(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = ch
}

// Calls returns the number of full fetches attempted.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// MaxInFlight returns the highest number of concurrent full fetches observed.
func (f *FakeFetcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFl
}

// Fetched returns every item downloaded so far, in order.
func (f *FakeFetcher) Fetched() []models.ItemID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ItemID(nil), f.fetched...)
}

func (f *FakeFetcher) List(ctx context.Context, ref string, limit int) (*models.RemoteListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failures[ref]; err != nil {
		return nil, err
	}
	listing, ok := f.playlists[ref]
	if !ok {
		return nil, fmt.Errorf("remote playlist unavailable: unknown ref %s", ref)
	}
	out := *listing
	out.Items = append([]models.RemoteItem(nil), listing.Items...)
	if limit > 0 && len(out.Items) > limit {
		out.Items = out.Items[:limit]
	}
	return &out, nil
}

func (f *FakeFetcher) Fetch(ctx context.Context, ref, targetDir, archivePath string, mode fetcher.Mode) (*fetcher.Result, error) {
	if mode == fetcher.FlatListing {
		listing, err := f.List(ctx, ref, 0)
		if err != nil {
			return nil, err
		}
		return &fetcher.Result{Mode: mode, ItemsSeen: len(listing.Items), Listing: listing}, nil
	}

	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFl {
		f.maxInFl = f.inFlight
	}
	hold := f.hold
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		err := f.failErr
		f.mu.Unlock()
		return nil, err
	}
	if err := f.failures[ref]; err != nil {
		f.mu.Unlock()
		return nil, err
	}
	listing, ok := f.playlists[ref]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown ref " + ref)
	}

	archived, err := loadArchive(archivePath)
	if err != nil {
		return nil, err
	}

	ledger, err := os.OpenFile(archivePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	result := &fetcher.Result{Mode: mode}
	for _, item := range listing.Items {
		if archived.Has(item.ID) {
			continue
		}
		stem := filepath.Join(targetDir, MediaStem(item.ID))
		if err := os.WriteFile(stem+".mp3", []byte("audio "+string(item.ID)), 0644); err != nil {
			return nil, err
		}
		sidecar := fmt.Sprintf(`{"id": %q, "title": %q}`, item.ID, item.Title)
		if err := os.WriteFile(stem+".info.json", []byte(sidecar), 0644); err != nil {
			return nil, err
		}
		if _, err := fmt.Fprintf(ledger, "youtube %s\n", item.ID); err != nil {
			return nil, err
		}
		result.ItemsSeen++

		f.mu.Lock()
		f.fetched = append(f.fetched, item.ID)
		f.mu.Unlock()
	}
	return result, nil
}

func loadArchive(path string) (models.ItemSet, error) {
	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		return models.NewItemSet(), nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return archive.Parse(fh)
}

// FakeStatusStore is an in-memory playlist status store.
type FakeStatusStore struct {
	mu        sync.Mutex
	active    map[models.PlaylistKey]bool
	synced    map[models.PlaylistKey]time.Time
	SetErr    error
	SetCalls  int
	SyncCalls int
}

func NewFakeStatusStore() *FakeStatusStore {
	return &FakeStatusStore{
		active: make(map[models.PlaylistKey]bool),
		synced: make(map[models.PlaylistKey]time.Time),
	}
}

func (s *FakeStatusStore) SetActive(owner, playlistID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.active[models.PlaylistKey{Owner: owner, PlaylistID: playlistID}] = active
	return nil
}

func (s *FakeStatusStore) MarkSynced(owner, playlistID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SyncCalls++
	s.synced[models.PlaylistKey{Owner: owner, PlaylistID: playlistID}] = at
	return nil
}

// Active reports the recorded flag for key.
func (s *FakeStatusStore) Active(key models.PlaylistKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[key]
}

// Synced reports whether key was ever marked synced.
func (s *FakeStatusStore) Synced(key models.PlaylistKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.synced[key]
	return ok
}

// QuietWriter discards log output while keeping it inspectable.
type QuietWriter struct {
	mu sync.Mutex
	b  strings.Builder
}

func (w *QuietWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *QuietWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

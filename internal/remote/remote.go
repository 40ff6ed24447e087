// package remote resolves playlist membership on the video platform.
//
// [Lister] wraps the fetcher's flat listing with a rate limiter and a circuit breaker so a
// scan over many playlists cannot hammer the platform, and so a platform outage skips the
// rest of the cycle instead of timing out playlist by playlist.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Source is the fetcher surface the lister needs.
type Source interface {
	fetcher.Fetcher
	List(ctx context.Context, ref string, limit int) (*models.RemoteListing, error)
}

// PlaylistInfo describes a playlist that passed the accessibility check.
type PlaylistInfo struct {
	PlaylistID string
	Title      string
	Count      int
	URL        string
}

// Lister returns flat remote listings.
type Lister struct {
	source  Source
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*models.RemoteListing]
	logger  *log.Logger
}

// NewLister builds a lister over source using the [remote] config section.
//
// A non-positive rate limit disables limiting; a zero breaker threshold disables tripping.
func NewLister(source Source, cfg shared.RemoteConfig, logger *log.Logger) *Lister {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	l := &Lister{
		source:  source,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}

	settings := gobreaker.Settings{
		Name:        "remote-lister",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerFailures > 0 && counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RemoteBreakerState.Set(float64(to))
			l.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	l.breaker = gobreaker.NewCircuitBreaker[*models.RemoteListing](settings)
	return l
}

// List returns the current membership of ref.
//
// Errors wrap [shared.ErrRemoteUnavailable] when the playlist cannot be resolved or while the
// breaker is open. Caller cancellation is returned unwrapped.
func (l *Lister) List(ctx context.Context, ref string) (*models.RemoteListing, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	listing, err := l.breaker.Execute(func() (*models.RemoteListing, error) {
		result, err := l.source.Fetch(ctx, ref, "", "", fetcher.FlatListing)
		if err != nil {
			return nil, err
		}
		return result.Listing, nil
	})

	switch {
	case err == nil:
		metrics.RemoteListTotal.WithLabelValues("ok").Inc()
		return listing, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RemoteListTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrRemoteUnavailable, ref, err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, shared.ErrRemoteUnavailable):
		metrics.RemoteListTotal.WithLabelValues("unavailable").Inc()
		return nil, err
	default:
		metrics.RemoteListTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrRemoteUnavailable, ref, err)
	}
}

// State reports the breaker state (closed, half-open, open).
func (l *Lister) State() string {
	return l.breaker.State().String()
}

// CheckAccessible confirms rawURL names a playlist the fetcher can read, listing only its
// first entry. The returned URL is normalized.
func (l *Lister) CheckAccessible(ctx context.Context, rawURL string) (*PlaylistInfo, error) {
	normalized, urlID, err := NormalizePlaylistURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	listing, err := l.source.List(ctx, normalized, 1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, shared.ErrRemoteUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrRemoteUnavailable, normalized, err)
	}

	// the list= parameter names the playlist directory
	return &PlaylistInfo{
		PlaylistID: urlID,
		Title:      listing.Title,
		Count:      listing.Count,
		URL:        normalized,
	}, nil
}

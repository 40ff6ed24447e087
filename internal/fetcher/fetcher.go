// package fetcher drives the yt-dlp binary, both for flat playlist listings and for
// full archive-aware downloads into a playlist directory.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Mode selects what a fetch invocation does.
type Mode int

const (
	// FlatListing enumerates playlist membership without downloading media.
	FlatListing Mode = iota
	// FullFetch downloads every item not yet recorded in the archive ledger.
	FullFetch
)

func (m Mode) String() string {
	switch m {
	case FlatListing:
		return "flat_listing"
	case FullFetch:
		return "full_fetch"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// itemMarker prefixes the line printed once per item that finished post-processing.
const itemMarker = "plsync-item "

// Item-level failures look like "ERROR: [youtube] <id>: Video unavailable". Playlist-level
// ones carry a qualified extractor such as [youtube:tab] and do not match.
var itemErrorPattern = regexp.MustCompile(`^ERROR: \[([a-z0-9_]+)\] ([A-Za-z0-9_-]+): (.+)$`)

// Result summarizes one fetcher invocation.
type Result struct {
	Mode      Mode
	ItemsSeen int      // listed entries (FlatListing) or items downloaded (FullFetch)
	Errors    []string // per-item failures that did not abort the run
	Listing   *models.RemoteListing
}

// Fetcher is the capability the reconciler and remote lister consume.
type Fetcher interface {
	Fetch(ctx context.Context, ref, targetDir, archivePath string, mode Mode) (*Result, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger used for fetcher output.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLookPath replaces the binary resolver used by [Client.Health].
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Client) {
		if fn != nil {
			c.lookPath = fn
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	cfg      shared.FetcherConfig
	timeout  time.Duration
	exec     Executor
	logger   *log.Logger
	lookPath func(string) (string, error)
}

// New constructs a yt-dlp client from the fetcher config section.
func New(cfg shared.FetcherConfig, opts ...Option) (*Client, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, fmt.Errorf("%w: fetcher.binary is required", shared.ErrInvalidConfig)
	}
	if cfg.OutputTemplate == "" {
		cfg.OutputTemplate = "%(uploader)s - %(title)s.%(ext)s"
	}

	client := &Client{
		cfg:      cfg,
		timeout:  cfg.Timeout(),
		exec:     commandExecutor{},
		logger:   shared.NewLogger(nil),
		lookPath: defaultLookPath,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Fetch runs yt-dlp against ref.
//
// In [FlatListing] mode nothing is downloaded and targetDir and archivePath are ignored.
// In [FullFetch] mode archivePath is passed as the download archive, so already-recorded
// items are skipped and newly downloaded ones are appended by yt-dlp itself. Individual
// item failures are collected in [Result.Errors] and do not fail the call.
//
// The invocation is bounded by fetcher.timeout_seconds; exceeding it yields an error
// wrapping both [shared.ErrFetch] and [shared.ErrTimeout].
func (c *Client) Fetch(ctx context.Context, ref, targetDir, archivePath string, mode Mode) (*Result, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: remote reference required", shared.ErrInvalidInput)
	}

	switch mode {
	case FlatListing:
		listing, err := c.List(ctx, ref, 0)
		if err != nil {
			return nil, err
		}
		return &Result{Mode: mode, ItemsSeen: len(listing.Items), Listing: listing}, nil
	case FullFetch:
		if targetDir == "" || archivePath == "" {
			return nil, fmt.Errorf("%w: target directory and archive path required", shared.ErrInvalidInput)
		}
		return c.download(ctx, ref, targetDir, archivePath)
	default:
		return nil, fmt.Errorf("%w: unknown fetch mode %v", shared.ErrInvalidInput, mode)
	}
}

func (c *Client) download(ctx context.Context, ref, targetDir, archivePath string) (*Result, error) {
	fetchCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		result     = &Result{Mode: FullFetch}
		tail       = newLineTail(20)
		fatalLines int
	)

	args := c.downloadArgs(ref, targetDir, archivePath)
	c.logger.Debug("running fetcher", "binary", c.cfg.Binary, "ref", ref, "dir", targetDir)

	err := c.exec.Run(fetchCtx, c.cfg.Binary, args,
		func(line string) {
			if id, ok := strings.CutPrefix(line, itemMarker); ok {
				result.ItemsSeen++
				c.logger.Info("fetched item", "id", strings.TrimSpace(id))
			}
		},
		func(line string) {
			tail.add(line)
			switch {
			case itemErrorPattern.MatchString(line):
				result.Errors = append(result.Errors, strings.TrimPrefix(line, "ERROR: "))
				c.logger.Warn("item failed", "detail", line)
			case strings.HasPrefix(line, "ERROR:"):
				fatalLines++
				c.logger.Error("fetcher error", "detail", line)
			default:
				c.logger.Debug(line)
			}
		},
	)

	if err == nil {
		return result, nil
	}
	if ctxErr := c.contextError(ctx, fetchCtx); ctxErr != nil {
		return nil, ctxErr
	}

	// yt-dlp exits 1 when any item failed under --ignore-errors.
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == 1 && fatalLines == 0 && len(result.Errors) > 0 {
		return result, nil
	}

	return nil, fmt.Errorf("%w: %s: %v%s", shared.ErrFetch, ref, err, tail.suffix())
}

// List performs a flat listing of ref. A positive limit restricts the listing to the
// first limit entries.
//
// Errors wrap [shared.ErrRemoteUnavailable] when the playlist itself cannot be resolved.
func (c *Client) List(ctx context.Context, ref string, limit int) (*models.RemoteListing, error) {
	fetchCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		doc        strings.Builder
		tail       = newLineTail(10)
		itemErrors int
		fatalLines int
	)

	err := c.exec.Run(fetchCtx, c.cfg.Binary, c.listArgs(ref, limit),
		func(line string) { doc.WriteString(line) },
		func(line string) {
			tail.add(line)
			switch {
			case itemErrorPattern.MatchString(line):
				itemErrors++
				c.logger.Warn("entry unavailable", "ref", ref, "detail", line)
			case strings.HasPrefix(line, "ERROR:"):
				fatalLines++
				c.logger.Debug(line)
			default:
				c.logger.Debug(line)
			}
		},
	)
	if err != nil {
		if ctxErr := c.contextError(ctx, fetchCtx); ctxErr != nil {
			return nil, ctxErr
		}
		// Entry failures under --ignore-errors still exit 1 after printing the document.
		var exitErr *ExitError
		partial := errors.As(err, &exitErr) && exitErr.Code == 1 && fatalLines == 0 && itemErrors > 0
		if !partial || strings.TrimSpace(doc.String()) == "" {
			return nil, fmt.Errorf("%w: %s: %v%s", shared.ErrRemoteUnavailable, ref, err, tail.suffix())
		}
	}

	return ParseListing([]byte(doc.String()))
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// contextError distinguishes caller cancellation (terminal) from the fetch bound expiring (retryable).
func (c *Client) contextError(parent, fetchCtx context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w after %s", shared.ErrFetch, shared.ErrTimeout, c.timeout)
	}
	return nil
}

func (c *Client) listArgs(ref string, limit int) []string {
	args := []string{"--flat-playlist", "--dump-single-json", "--ignore-errors", "--no-warnings"}
	if limit > 0 {
		args = append(args, "--playlist-items", fmt.Sprintf("1:%d", limit))
	}
	args = append(args, c.commonArgs()...)
	return append(args, ref)
}

func (c *Client) downloadArgs(ref, targetDir, archivePath string) []string {
	args := []string{
		"--ignore-errors",
		"--no-progress",
		"--download-archive", archivePath,
		"--write-info-json",
		"--no-write-playlist-metafiles",
		"--output", filepath.Join(targetDir, c.cfg.OutputTemplate),
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", c.cfg.AudioFormat,
		"--audio-quality", c.cfg.AudioQuality,
		"--embed-metadata",
		"--parse-metadata", "youtube_id=%(id)s; playlist_id=%(playlist_id)s:%(meta_comment)s",
		"--retries", "10",
		"--fragment-retries", "10",
		"--sleep-interval", "1",
		"--max-sleep-interval", "5",
		"--print", "after_move:" + itemMarker + "%(id)s",
	}
	if c.cfg.FFmpegBinary != "" {
		args = append(args, "--ffmpeg-location", c.cfg.FFmpegBinary)
	}
	args = append(args, c.commonArgs()...)
	return append(args, ref)
}

func (c *Client) commonArgs() []string {
	var args []string
	if c.cfg.CookiesFile != "" {
		args = append(args, "--cookies", c.cfg.CookiesFile)
	}
	return append(args, c.cfg.ExtraArgs...)
}

// lineTail keeps the last n lines of stderr for error messages.
type lineTail struct {
	n     int
	lines []string
}

func newLineTail(n int) *lineTail { return &lineTail{n: n} }

func (t *lineTail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) suffix() string {
	if len(t.lines) == 0 {
		return ""
	}
	return ": " + strings.Join(t.lines, "; ")
}

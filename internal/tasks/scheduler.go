package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// Scanning is implemented by [Scanner].
type Scanning interface {
	ScanAll(ctx context.Context, progress chan<- ProgressUpdate) (*ScanSummary, error)
}

// Scheduler runs scans on a fixed interval and on demand.
//
// Triggers that arrive while a scan is running wait for it and share its summary.
type Scheduler struct {
	scanner  Scanning
	interval time.Duration
	logger   *log.Logger

	group singleflight.Group
	mu    sync.RWMutex
	last  *ScanSummary
	lastE error
}

// NewScheduler scans every interval. A non-positive interval disables the timer; Trigger
// still works.
func NewScheduler(scanner Scanning, interval time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{scanner: scanner, interval: interval, logger: logger}
}

// Trigger runs a scan now, or joins the one in progress.
func (s *Scheduler) Trigger(ctx context.Context) (*ScanSummary, error) {
	v, err, joined := s.group.Do("scan", func() (any, error) {
		summary, err := s.scanner.ScanAll(ctx, nil)
		s.mu.Lock()
		s.last, s.lastE = summary, err
		s.mu.Unlock()
		return summary, err
	})
	if joined {
		s.logger.Debug("joined scan already in progress")
	}
	summary, _ := v.(*ScanSummary)
	return summary, err
}

// Last returns the most recent scan summary and error, if any scan has run.
func (s *Scheduler) Last() (*ScanSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastE
}

// Serve scans immediately and then on every tick until ctx is done.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.runOnce(ctx)
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// String names the service for supervision logs.
func (s *Scheduler) String() string { return "scan-scheduler" }

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.Trigger(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled scan failed", "error", err)
	}
}

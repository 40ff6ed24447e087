package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDispatcherClosed is returned by Submit after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrQueueFull is returned by Submit when QueueSize jobs are already waiting.
	ErrQueueFull = errors.New("reconcile queue full")
)

// JobStore persists [models.SyncJob] records.
type JobStore interface {
	Create(job *models.SyncJob) error
	Update(job *models.SyncJob) error
	Get(id string) (*models.SyncJob, error)
}

// DispatchOpts configures a [Dispatcher].
type DispatchOpts struct {
	Workers   int         // concurrent reconciliations (default: 1)
	QueueSize int         // pending jobs before Submit fails (default: 256)
	Policy    RetryPolicy // bounded retry around each job
	Progress  chan<- ProgressUpdate
}

type queued struct {
	job *models.SyncJob
	req reconcile.Request
}

// Dispatcher is an in-process reconcile queue with a bounded worker pool.
//
// A playlist with a job still waiting in the queue is not queued twice: Submit returns the
// pending job and merges the removal sets. Jobs for a playlist that is already running are
// queued and rejected by its lock if they start while it is still held.
type Dispatcher struct {
	rec    Attempter
	jobs   JobStore
	opts   DispatchOpts
	logger *log.Logger
	now    func() time.Time

	queue     chan queued
	mu        sync.Mutex
	pending   map[models.PlaylistKey]*queued
	closed    bool
	closeOnce sync.Once
}

func NewDispatcher(rec Attempter, jobs JobStore, opts DispatchOpts, logger *log.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		rec:     rec,
		jobs:    jobs,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		queue:   make(chan queued, opts.QueueSize),
		pending: make(map[models.PlaylistKey]*queued),
	}
}

// Submit records a queued job and enqueues it without blocking.
func (d *Dispatcher) Submit(ctx context.Context, req reconcile.Request) (*models.SyncJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}
	if p, ok := d.pending[req.Key]; ok {
		p.req.Removed = p.req.Removed.Union(req.Removed)
		return p.job, nil
	}

	job := models.NewSyncJob(0, req.Key)
	if err := d.jobs.Create(job); err != nil {
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	q := &queued{job: job, req: req}
	select {
	case d.queue <- *q:
	default:
		d.finish(job, models.JobFailed, 0, nil, ErrQueueFull)
		return nil, fmt.Errorf("%w (%d)", ErrQueueFull, d.opts.QueueSize)
	}
	// keep the pending entry pointing at the live request so merges reach the worker
	d.pending[req.Key] = q
	sendProgress(d.opts.Progress, queueReconcileUpdate(job, req.Removed.Len()))
	return job, nil
}

// Close stops accepting jobs; Serve returns once the queue drains.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
}

// Job returns a recorded job by id.
func (d *Dispatcher) Job(id string) (*models.SyncJob, error) {
	return d.jobs.Get(id)
}

// Serve runs the worker pool until ctx is done or, after Close, the queue is empty.
func (d *Dispatcher) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range d.opts.Workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case q, ok := <-d.queue:
					if !ok {
						return nil
					}
					d.run(gctx, q)
				}
			}
		})
	}
	return g.Wait()
}

// String names the service for supervision logs.
func (d *Dispatcher) String() string { return "reconcile-dispatcher" }

func (d *Dispatcher) run(ctx context.Context, q queued) {
	d.mu.Lock()
	req := q.req
	if p, ok := d.pending[q.job.Key()]; ok && p.job == q.job {
		req = p.req
		delete(d.pending, q.job.Key())
	}
	d.mu.Unlock()

	job := q.job
	started := d.now().UTC()
	job.SetStatus(models.JobRunning)
	job.SetStartedAt(&started)
	d.save(job)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	logger := shared.WithLogger(d.logger, "job_id", job.ID())
	onAttempt := func(n int) {
		job.SetAttempts(n)
		sendProgress(d.opts.Progress, runReconcileUpdate(job, n, d.opts.Policy.MaxAttempts))
	}

	outcome, attempts, err := Retry(ctx, d.rec, req, d.opts.Policy, logger, onAttempt)
	switch {
	case err == nil:
		d.finish(job, models.JobCompleted, attempts, outcome, nil)
	case errors.Is(err, shared.ErrReconcileInProgress):
		d.finish(job, models.JobRejected, attempts, nil, err)
	default:
		d.finish(job, models.JobFailed, attempts, nil, err)
	}
}

func (d *Dispatcher) finish(job *models.SyncJob, status models.JobStatus, attempts int, outcome *reconcile.Outcome, err error) {
	finished := d.now().UTC()
	job.SetStatus(status)
	job.SetAttempts(attempts)
	job.SetFinishedAt(&finished)
	if outcome != nil {
		job.SetCounts(outcome.Fetched, outcome.RemovedEntries, outcome.RemovedFiles)
	}
	if err != nil {
		job.SetErrorMessage(err.Error())
	}
	d.save(job)
	sendProgress(d.opts.Progress, finishReconcileUpdate(job))
}

func (d *Dispatcher) save(job *models.SyncJob) {
	if err := d.jobs.Update(job); err != nil {
		d.logger.Error("failed to update job", "job_id", job.ID(), "status", job.Status(), "error", err)
	}
}

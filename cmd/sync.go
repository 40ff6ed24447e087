package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/plsync/internal/metrics"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// repairFlag resolves --repair against reconcile.repair_on_integrity_issue.
func (r *Runner) repairFlag(cmd *cli.Command) bool {
	if cmd.IsSet("repair") {
		return cmd.Bool("repair")
	}
	return r.cfg().Reconcile.RepairOnIntegrityIssue
}

// Scan runs one scan cycle over every active playlist.
//
// With --no-dispatch the differences are only reported.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	repair := r.repairFlag(cmd)
	var summary *tasks.ScanSummary

	if cmd.Bool("no-dispatch") {
		summary, err = c.scanner(nil, repair).ScanAll(ctx, nil)
	} else {
		err = c.runQueue(ctx, func(d *tasks.Dispatcher) error {
			var scanErr error
			summary, scanErr = c.scanner(d, repair).ScanAll(ctx, nil)
			return scanErr
		})
	}
	if err != nil {
		return err
	}

	if err := r.render(cmd.String("format"), summary); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d playlist(s) failed to scan", shared.ErrFetch, summary.Failed)
	}
	return nil
}

// Reconcile inspects one playlist and reconciles it when it differs from its remote.
//
// An inactive playlist is always reconciled so a first sync can activate it.
func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	playlist, err := c.playlists.GetByKey(cmd.String("owner"), cmd.String("playlist"))
	if err != nil {
		return err
	}

	var res tasks.PlaylistScan
	err = c.runQueue(ctx, func(d *tasks.Dispatcher) error {
		res = c.scanner(d, r.cfg().Reconcile.RepairOnIntegrityIssue).Inspect(ctx, playlist)
		if res.Outcome == metrics.ScanInSync && !playlist.Active() {
			job, err := d.Submit(ctx, reconcile.Request{Key: playlist.Key(), RemoteRef: playlist.RemoteRef()})
			if err != nil {
				return err
			}
			res.Outcome, res.JobID = metrics.ScanQueued, job.ID()
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case metrics.ScanInSync:
		return r.writePlain("%s %s is in sync\n", r.palette.OK("✓"), playlist.Key())
	case metrics.ScanSkipped:
		return fmt.Errorf("%w: %s", shared.ErrRemoteUnavailable, res.Error)
	case metrics.ScanFailed:
		return errors.New(res.Error)
	}

	job, err := c.jobs.Get(res.JobID)
	if err != nil {
		return err
	}
	return r.reportJob(job, cmd.String("format"))
}

// Validate reports integrity issues for one playlist directory without changing it.
func (r *Runner) Validate(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	key := models.PlaylistKey{Owner: cmd.String("owner"), PlaylistID: cmd.String("playlist")}
	if err := key.Validate(); err != nil {
		return err
	}

	report, err := c.validator.Validate(key)
	if err != nil {
		return err
	}
	return r.render(cmd.String("format"), report)
}

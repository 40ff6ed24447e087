package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// PlaylistAdd tracks a playlist URL for an owner and, unless --no-sync is set, runs its first
// reconciliation so it becomes active.
func (r *Runner) PlaylistAdd(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.StringArg("url")
	if rawURL == "" {
		return fmt.Errorf("%w: playlist url", shared.ErrMissingArgument)
	}

	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	playlist, err := c.lifecycle.AddPlaylist(ctx, cmd.String("owner"), rawURL, cmd.String("name"))
	if err != nil {
		return err
	}
	r.writePlain("%s tracking %s (%s)\n", r.palette.OK("✓"), playlist.Key(), playlist.Name())

	if cmd.Bool("no-sync") {
		return r.writePlain("%s\n", r.palette.Help("run `plsync reconcile` to activate it"))
	}

	job, err := r.syncNow(ctx, c, reconcile.Request{Key: playlist.Key(), RemoteRef: playlist.RemoteRef()})
	if err != nil {
		return err
	}
	return r.reportJob(job, "text")
}

// PlaylistRemove deactivates a playlist, or deletes its record with --hard. Local files stay.
func (r *Runner) PlaylistRemove(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	owner, playlistID, hard := cmd.String("owner"), cmd.String("playlist"), cmd.Bool("hard")
	if err := c.lifecycle.RemovePlaylist(owner, playlistID, hard); err != nil {
		return err
	}

	verb := "deactivated"
	if hard {
		verb = "deleted"
	}
	return r.writePlain("%s %s/%s %s; files under %s are untouched\n", r.palette.Warn("!"), owner, playlistID, verb,
		c.store.Dir(models.PlaylistKey{Owner: owner, PlaylistID: playlistID}))
}

// PlaylistList prints tracked playlists, active ones only unless --all is set.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	criteria := map[string]any{"owner": cmd.String("owner")}
	if !cmd.Bool("all") {
		criteria["active"] = true
	}
	playlists, err := c.playlists.List(criteria)
	if err != nil {
		return err
	}
	return r.render(cmd.String("format"), playlists)
}

// PlaylistSanitize deactivates playlists whose owner is inactive or missing.
func (r *Runner) PlaylistSanitize(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.lifecycle.Sanitize()
	if err != nil {
		return err
	}
	return r.writePlain("%d orphaned playlist(s) deactivated\n", n)
}

// syncNow submits req to a one-off dispatcher, waits for it and returns the stored job.
func (r *Runner) syncNow(ctx context.Context, c *components, req reconcile.Request) (*models.SyncJob, error) {
	var id string
	err := c.runQueue(ctx, func(d *tasks.Dispatcher) error {
		job, err := d.Submit(ctx, req)
		if err != nil {
			return err
		}
		id = job.ID()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.jobs.Get(id)
}

// reportJob renders a finished job and turns a failed or rejected job into an error.
func (r *Runner) reportJob(job *models.SyncJob, format string) error {
	if err := r.render(format, job); err != nil {
		return err
	}
	switch job.Status() {
	case models.JobFailed:
		return fmt.Errorf("reconcile %s failed after %d attempt(s): %s", job.Key(), job.Attempts(), job.ErrorMessage())
	case models.JobRejected:
		return fmt.Errorf("%w: %s", shared.ErrReconcileInProgress, job.Key())
	}
	return nil
}

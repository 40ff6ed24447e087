package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// JobsList prints the most recent reconcile jobs, newest first.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	criteria := map[string]any{"owner": cmd.String("owner"), "limit": cmd.Int("limit")}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = models.JobStatus(status)
	}

	jobs, err := c.jobs.List(criteria)
	if err != nil {
		return err
	}
	return r.render(cmd.String("format"), jobs)
}

// JobStatus prints one job by ID.
func (r *Runner) JobStatus(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	job, err := c.jobs.Get(id)
	if err != nil {
		return err
	}
	return r.render(cmd.String("format"), job)
}

// Health reports external binary availability and the remote breaker state.
func (r *Runner) Health(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	health := server.BuildHealth(ctx, c.statusDeps(nil))
	if err := r.render(cmd.String("format"), health); err != nil {
		return err
	}
	if !health.Ready {
		return fmt.Errorf("%w: required binaries are missing", shared.ErrMissingConfig)
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// UserAdd creates an owner.
func (r *Runner) UserAdd(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: user name", shared.ErrMissingArgument)
	}

	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	user := models.NewUser(0, name, cmd.String("email"))
	if err := c.users.Create(user); err != nil {
		return err
	}

	r.logger.Info("created user", "owner", name, "id", user.ID())
	return r.writePlain("%s user %s created\n", r.palette.OK("✓"), name)
}

// UserDeactivate marks an owner inactive and deactivates their playlists.
func (r *Runner) UserDeactivate(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: user name", shared.ErrMissingArgument)
	}

	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.lifecycle.DeactivateUser(name)
	if err != nil {
		return err
	}
	return r.writePlain("%s user %s deactivated, %d playlist(s) retired\n", r.palette.Warn("!"), name, n)
}

// UserList prints every owner that has not been deleted.
func (r *Runner) UserList(ctx context.Context, cmd *cli.Command) error {
	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	users, err := c.users.List(nil)
	if err != nil {
		return err
	}
	return r.render(cmd.String("format"), users)
}

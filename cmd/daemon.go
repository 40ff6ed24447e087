package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/supervisor"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
)

// Daemon scans on an interval, reconciles what differs and serves status endpoints until
// interrupted. One daemon runs per storage root.
func (r *Runner) Daemon(ctx context.Context, cmd *cli.Command) error {
	config := r.cfg()
	if err := os.MkdirAll(config.Storage.Root, 0755); err != nil {
		return fmt.Errorf("%w: create storage root: %v", shared.ErrStorage, err)
	}

	pidLock := flock.New(r.storageDir(".plsync.lock"))
	locked, err := pidLock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: daemon lock: %v", shared.ErrStorage, err)
	}
	if !locked {
		return fmt.Errorf("%w: another daemon is running on %s", shared.ErrReconcileInProgress, config.Storage.Root)
	}
	defer pidLock.Unlock()

	c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	interval := config.Scheduler.Interval()
	if minutes := cmd.Int("interval"); minutes > 0 {
		interval = time.Duration(minutes) * time.Minute
	}
	addr := config.Server.Addr()
	if flag := cmd.String("addr"); flag != "" {
		addr = flag
	}

	// The dispatcher is never closed here; supervision restarts a Serve that returns.
	dispatcher := c.dispatcher(nil)
	scanner := c.scanner(dispatcher, config.Reconcile.RepairOnIntegrityIssue)
	scheduler := tasks.NewScheduler(scanner, interval, shared.WithLogger(r.logger, "component", "scheduler"))

	router := server.NewRouter(c.statusDeps(scheduler))
	status := server.New(addr, router, shared.WithLogger(r.logger, "component", "server"))

	tree := supervisor.New(slog.New(r.logger), supervisor.DefaultTreeConfig())
	tree.AddWorkService(dispatcher)
	tree.AddWorkService(scheduler)
	tree.AddAPIService(status)

	r.logger.Info("daemon started", "root", config.Storage.Root, "interval", interval, "addr", addr)
	if err := tree.Serve(ctx); err != nil {
		return err
	}
	r.logger.Info("daemon stopped")
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/archive"
	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/lock"
	"github.com/desertthunder/plsync/internal/reconcile"
	"github.com/desertthunder/plsync/internal/remote"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/server"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/desertthunder/plsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	palette    *ui.Palette
	source     remote.Source
	locker     lock.Locker
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Source and Locker replace the yt-dlp client and the configured lock backend.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Source     remote.Source
	Locker     lock.Locker
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		palette:    ui.Default(),
		source:     opts.Source,
		locker:     opts.Locker,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, userCommand, playlistCommand, scanCommand, reconcileCommand, validateCommand,
		jobsCommand, healthCommand, daemonCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config unless one was injected, and applies
// the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.config == nil {
		config, err := r.loadConfig()
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	level := r.config.Log.Level
	if flag := cmd.String("log-level"); flag != "" {
		level = flag
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))
	return ctx, nil
}

func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.configPath == "" {
		return shared.DefaultConfig(), nil
	}
	if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return shared.DefaultConfig(), nil
	}
	config, err := shared.LoadConfig(r.configPath)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func (r *Runner) cfg() *shared.Config {
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	return r.config
}

// components is the wired object graph shared by every command that touches the library.
type components struct {
	db         *sql.DB
	users      *repositories.UserRepository
	playlists  *repositories.PlaylistRepository
	jobs       *repositories.JobRepository
	store      *archive.Store
	source     remote.Source
	lister     *remote.Lister
	validator  *reconcile.Validator
	locker     lock.Locker
	reconciler *reconcile.Reconciler
	lifecycle  *tasks.Lifecycle
	config     *shared.Config
	logger     *log.Logger
}

// open validates the configuration, migrates the database and builds the components.
func (r *Runner) open() (*components, error) {
	config := r.cfg()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	source := r.source
	if source == nil {
		client, err := fetcher.New(config.Fetcher, fetcher.WithLogger(shared.WithLogger(r.logger, "component", "fetcher")))
		if err != nil {
			db.Close()
			return nil, err
		}
		source = client
	}

	locker := r.locker
	if locker == nil {
		locker, err = lock.New(config.Lock, config.Storage.Root)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	c := &components{
		db:        db,
		users:     repositories.NewUserRepository(db),
		playlists: repositories.NewPlaylistRepository(db),
		jobs:      repositories.NewJobRepository(db),
		store:     archive.NewStore(config.Storage.Root),
		source:    source,
		locker:    locker,
		config:    config,
		logger:    r.logger,
	}
	c.lister = remote.NewLister(source, config.Remote, shared.WithLogger(r.logger, "component", "remote"))
	c.validator = reconcile.NewValidator(c.store, config.Storage.MediaExtensions)
	c.reconciler = reconcile.New(c.store, source, locker, c.playlists,
		reconcile.WithLogger(shared.WithLogger(r.logger, "component", "reconcile")))
	c.lifecycle = tasks.NewLifecycle(c.users, c.playlists, c.lister, r.logger)
	return c, nil
}

func (c *components) Close() error {
	if closer, ok := c.locker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("failed to close lock backend", "error", err)
		}
	}
	return c.db.Close()
}

// dispatcher builds a reconcile queue sized by the [reconcile] section.
func (c *components) dispatcher(progress chan<- tasks.ProgressUpdate) *tasks.Dispatcher {
	return tasks.NewDispatcher(c.reconciler, c.jobs, tasks.DispatchOpts{
		Workers:  c.config.Reconcile.Workers,
		Policy:   tasks.PolicyFromConfig(c.config.Reconcile),
		Progress: progress,
	}, shared.WithLogger(c.logger, "component", "dispatch"))
}

// scanner builds a scan coordinator; a nil submitter makes it a dry run.
func (c *components) scanner(submitter tasks.Submitter, repair bool) *tasks.Scanner {
	opts := tasks.ScanOpts{Workers: c.config.Scheduler.ScanWorkers, Repair: repair}
	return tasks.NewScanner(c.playlists, c.lister, c.store, c.validator, submitter, opts,
		shared.WithLogger(c.logger, "component", "scan"))
}

// statusDeps wires the health and job sources; scans is nil outside the daemon.
func (c *components) statusDeps(scans server.ScanReporter) server.Deps {
	deps := server.Deps{Breaker: c.lister, Jobs: c.jobs, Logger: c.logger}
	if checker, ok := c.source.(server.BinaryChecker); ok {
		deps.Binaries = checker
	}
	if scans != nil {
		deps.Scans = scans
	}
	return deps
}

// runQueue starts a dispatcher, hands it to fn, then drains the queue before returning.
func (c *components) runQueue(ctx context.Context, fn func(d *tasks.Dispatcher) error) error {
	progress := make(chan tasks.ProgressUpdate, 64)
	d := c.dispatcher(progress)

	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	logged := make(chan struct{})
	go func() {
		defer close(logged)
		for update := range progress {
			c.logger.Info(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	fnErr := fn(d)
	d.Close()
	serveErr := <-done
	close(progress)
	<-logged

	if fnErr != nil {
		return fnErr
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return ctx.Err()
}

func (r *Runner) render(format string, v any) error {
	f, err := formatter.ParseFormat(format)
	if err != nil {
		return err
	}
	data, err := formatter.Render(f, v)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// storageDir resolves a path relative to the storage root.
func (r *Runner) storageDir(parts ...string) string {
	return filepath.Join(append([]string{r.cfg().Storage.Root}, parts...)...)
}

// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (text, json, markdown, csv)",
		Value:   value,
	}
}

func ownerFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"o"},
		Usage:    "Owner handle",
		Required: required,
	}
}

func playlistFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "playlist",
		Aliases:  []string{"p"},
		Usage:    "Playlist ID",
		Required: true,
	}
}

// setupCommand initializes the database or writes a starter config
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize the status database or configuration",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write the example configuration to --config",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// userCommand manages owners
func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage playlist owners",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create an owner",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Usage:    "Contact email",
						Required: true,
					},
				},
				Action: r.UserAdd,
			},
			{
				Name:      "deactivate",
				Usage:     "Deactivate an owner and retire their playlists",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.UserDeactivate,
			},
			{
				Name:   "list",
				Usage:  "List owners",
				Flags:  []cli.Flag{formatFlag("text")},
				Action: r.UserList,
			},
		},
	}
}

// playlistCommand manages tracked playlists
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Manage tracked playlists",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Track a playlist URL and run its first sync",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags: []cli.Flag{
					ownerFlag(true),
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name (defaults to the remote title)",
					},
					&cli.BoolFlag{
						Name:  "no-sync",
						Usage: "Record the playlist without syncing; it stays inactive until reconciled",
					},
				},
				Action: r.PlaylistAdd,
			},
			{
				Name:  "remove",
				Usage: "Stop tracking a playlist (files are kept)",
				Flags: []cli.Flag{
					ownerFlag(true),
					playlistFlag(),
					&cli.BoolFlag{
						Name:  "hard",
						Usage: "Delete the record instead of deactivating it",
					},
				},
				Action: r.PlaylistRemove,
			},
			{
				Name:  "list",
				Usage: "List playlists",
				Flags: []cli.Flag{
					ownerFlag(false),
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include inactive playlists",
					},
					formatFlag("text"),
				},
				Action: r.PlaylistList,
			},
			{
				Name:   "sanitize",
				Usage:  "Deactivate playlists whose owner is inactive or missing",
				Action: r.PlaylistSanitize,
			},
		},
	}
}

// scanCommand runs one scan cycle
func scanCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Compare every active playlist with its remote and reconcile the differences",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-dispatch",
				Usage: "Report differences without reconciling",
			},
			&cli.BoolFlag{
				Name:  "repair",
				Usage: "Re-fetch zero-byte media (defaults to reconcile.repair_on_integrity_issue)",
			},
			formatFlag("text"),
		},
		Action: r.Scan,
	}
}

// reconcileCommand reconciles one playlist now
func reconcileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "reconcile",
		Usage:  "Reconcile one playlist immediately",
		Flags:  []cli.Flag{ownerFlag(true), playlistFlag(), formatFlag("text")},
		Action: r.Reconcile,
	}
}

// validateCommand reports local integrity issues
func validateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Check a playlist directory for integrity issues",
		Flags:  []cli.Flag{ownerFlag(true), playlistFlag(), formatFlag("text")},
		Action: r.Validate,
	}
}

// jobsCommand inspects reconcile job records
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect reconcile jobs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent jobs",
				Flags: []cli.Flag{
					ownerFlag(false),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (queued, running, completed, failed, rejected)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 20,
					},
					formatFlag("text"),
				},
				Action: r.JobsList,
			},
			{
				Name:      "status",
				Usage:     "Show one job",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Flags:     []cli.Flag{formatFlag("text")},
				Action:    r.JobStatus,
			},
		},
	}
}

// healthCommand checks external binaries
func healthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check yt-dlp and ffmpeg availability",
		Flags:  []cli.Flag{formatFlag("text")},
		Action: r.Health,
	}
}

// daemonCommand runs the scheduler, dispatcher and status server under supervision
func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Scan on an interval and serve /healthz, /metrics and /jobs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "interval",
				Usage: "Scan interval in minutes (defaults to scheduler.interval_minutes)",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Daemon,
	}
}

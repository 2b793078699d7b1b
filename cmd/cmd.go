// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/vidpub/internal/formatter"
	"github.com/urfave/cli/v3"
)

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// accountsCommand inspects the accounts file
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acct"},
		Usage:   "Publishing account operations",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Print the status of every configured account",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AccountsValidate,
			},
		},
	}
}

// authCommand handles OAuth consent for platforms that need it
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize publishing accounts",
		Commands: []*cli.Command{
			{
				Name:    "youtube",
				Aliases: []string{"yt"},
				Usage:   "Authorize a YouTube channel and write its credentials file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Aliases:  []string{"a"},
						Usage:    "YouTube account ID from the accounts file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the consent URL instead of opening a browser",
					},
				},
				Action: r.AuthYouTube,
			},
		},
	}
}

// jobsCommand manages upload jobs
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Upload job operations",
		Commands: []*cli.Command{
			{
				Name:  "enqueue",
				Usage: "Queue a video for one or more platform accounts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the video file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Video title (defaults to the file name)",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Video description",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Tag to attach (repeatable)",
					},
					&cli.StringFlag{
						Name:  "thumbnail",
						Usage: "Path to a thumbnail image",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Content kind (long or short)",
						Value: "long",
					},
					&cli.StringSliceFlag{
						Name:     "target",
						Aliases:  []string{"t"},
						Usage:    "Destination as platform[:account] (repeatable)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "at",
						Usage: "Publish time in RFC 3339 with an explicit offset",
					},
					&cli.BoolFlag{
						Name:  "native",
						Usage: "Let platforms that support it hold the video until the publish time",
					},
				},
				Action: r.JobsEnqueue,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List jobs and their targets",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (" + strings.Join(formatter.Formats, ", ") + ")",
						Value: "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.JobsList,
			},
			{
				Name:  "show",
				Usage: "Show one job in detail",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.JobsShow,
			},
		},
	}
}

// runCommand starts the scheduler
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Recover interrupted uploads and dispatch due targets",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Poll a single time and exit when the started uploads finish",
			},
			&cli.BoolFlag{
				Name:    "tui",
				Aliases: []string{"ui"},
				Usage:   "Show the live dashboard",
			},
		},
		Action: r.Run,
	}
}

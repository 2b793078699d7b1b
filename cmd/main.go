package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/vidpub/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}

func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "vidpub",
		Usage:   "Schedule and publish videos to YouTube, Facebook, Instagram & TikTok",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   r.Before,
		Commands: r.register(),
	}
}

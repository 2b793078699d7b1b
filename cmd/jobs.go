package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/formatter"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
	"github.com/desertthunder/vidpub/internal/tasks"
	"github.com/urfave/cli/v3"
)

// parseTarget splits "platform[:account]".
func parseTarget(s string) (models.Platform, string, error) {
	name, account, _ := strings.Cut(strings.TrimSpace(s), ":")
	p, err := models.ParsePlatform(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return "", "", fmt.Errorf("%w: target %q: %v", shared.ErrInvalidArgument, s, err)
	}
	return p, strings.TrimSpace(account), nil
}

// buildJob assembles a job from the enqueue flags. Targets without an account use the
// platform's default for the job's kind.
func (r *Runner) buildJob(cmd *cli.Command, reg *accounts.Registry) (*models.Job, error) {
	path, err := filepath.Abs(shared.ExpandPath(cmd.String("file")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	if !shared.FileExists(path) {
		return nil, fmt.Errorf("%w: media file %s not found", shared.ErrInvalidArgument, path)
	}

	kind, err := models.ParseContentKind(cmd.String("kind"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	var at *time.Time
	if s := cmd.String("at"); s != "" {
		t, err := models.ParseSchedule(s)
		if err != nil {
			return nil, fmt.Errorf("%w: --at: %v", shared.ErrInvalidArgument, err)
		}
		at = &t
	}

	mode := models.ScheduleLocal
	if cmd.Bool("native") {
		mode = models.ScheduleNative
	}

	title := cmd.String("title")
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	job := models.NewJob(path, title, kind)
	job.Description = cmd.String("description")
	job.Tags = cmd.StringSlice("tag")
	if thumb := cmd.String("thumbnail"); thumb != "" {
		job.ThumbnailPath = shared.ExpandPath(thumb)
	}

	for _, spec := range cmd.StringSlice("target") {
		platform, account, err := parseTarget(spec)
		if err != nil {
			return nil, err
		}
		if account == "" {
			def, err := reg.Default(platform, kind)
			if err != nil {
				return nil, err
			}
			account = def.ID
		}
		job.AddTarget(platform, account, at, mode)
	}
	return job, nil
}

// JobsEnqueue builds a job from flags and persists it with all targets.
func (r *Runner) JobsEnqueue(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.loadAccounts()
	if err != nil {
		return err
	}

	job, err := r.buildJob(cmd, reg)
	if err != nil {
		return err
	}

	for _, t := range job.Targets {
		if spec, err := reg.Get(t.Platform, t.AccountID); err != nil {
			r.logger.Warn("target account is not configured", "platform", t.Platform, "account", t.AccountID)
		} else if !spec.Usable() {
			r.logger.Warn("target account is not usable", "platform", t.Platform, "account", t.AccountID, "status", spec.Status, "message", spec.Message)
		}
	}

	store, db, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	sched := tasks.NewScheduler(store, nil, tasks.Options{Logger: shared.WithLogger(r.logger, "component", "scheduler")})
	report, err := sched.Enqueue(ctx, job)
	if err != nil {
		return err
	}

	r.writePlain("Job %s  %s\n", report.JobID, job.Title)
	for _, t := range job.Targets {
		status := "queued"
		if slices.Contains(report.Skipped, t.Fingerprint) {
			status = "skipped (already published or uploading)"
		}
		r.writePlain("  %s/%s  %s\n", t.Platform, t.AccountID, status)
	}
	return nil
}

// JobsList renders every job with its targets.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	store, db, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	jobs, err := store.LoadJobsWithTargets(ctx)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if output := cmd.String("output"); output != "" {
		path, err := formatter.WriteJobsExport(jobs, format, output)
		if err != nil {
			return err
		}
		r.logger.Info("jobs exported", "path", path, "jobs", len(jobs))
		return nil
	}

	data, err := formatter.FormatJobs(jobs, format)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// JobsShow prints one job with its targets.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}

	store, db, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return r.writeBytes(formatter.JobDetail(job))
}

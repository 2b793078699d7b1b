package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/services"
	"github.com/desertthunder/vidpub/internal/shared"
	"github.com/desertthunder/vidpub/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Run recovers uploads interrupted by a previous process, then dispatches due targets
// until interrupted. With --once it polls a single time.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("tui") && !cmd.Bool("once") {
		fileLogger, err := shared.NewFileLogger(shared.ExpandPath(r.config.Log.File))
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		shared.SetLogLevel(fileLogger, r.config.Log.Level)
		r.SetLogger(fileLogger)
	}

	store, db, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, err := r.loadAccounts()
	if err != nil {
		return err
	}
	counts := reg.Counts()
	r.logger.Info("accounts loaded", "path", reg.Path(), "legacy", reg.Legacy(), "usable", counts[accounts.StatusUsable], "total", len(reg.All()))

	holder := accounts.NewHolder(reg)
	dispatcher := services.NewPlatformDispatcher(holder, r.config.Platforms, r.httpClient)

	opts := tasks.OptionsFromConfig(r.config.Scheduler)
	opts.Logger = shared.WithLogger(r.logger, "component", "scheduler")
	sched := tasks.NewScheduler(store, dispatcher, opts)

	unsubscribe := sched.Bus().SubscribeFunc(r.logEvent)
	defer unsubscribe()

	report, err := sched.Recover(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("once") {
		n, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("Recovered %d interrupted, abandoned %d, dispatched %d\n", len(report.Retried), len(report.Abandoned), n)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.config.Accounts.Watch {
		go r.watchAccounts(ctx, holder)
	}
	go r.notifySystemd(ctx)

	if cmd.Bool("tui") {
		return r.runDashboard(ctx, cancel, sched, store)
	}

	err = sched.Run(ctx)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// watchAccounts hot-reloads the accounts file into holder until ctx is done.
func (r *Runner) watchAccounts(ctx context.Context, holder *accounts.Holder) {
	path := r.accountsPath()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		r.logger.Warn("accounts directory not found, hot reload disabled", "path", path)
		return
	}

	logger := shared.WithLogger(r.logger, "component", "accounts")
	if err := accounts.Watch(ctx, path, r.accountOptions(), holder, logger, nil); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("accounts watcher stopped", "error", err)
	}
}

// notifySystemd reports readiness and keeps the watchdog fed when the unit enables one.
// Outside systemd every call is a no-op.
func (r *Runner) notifySystemd(ctx context.Context) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		r.logger.Warn("systemd notify failed", "error", err)
	} else if ok {
		r.logger.Debug("notified systemd")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

// logEvent writes scheduler lifecycle events to the log.
func (r *Runner) logEvent(e tasks.Event) error {
	switch e.Type {
	case tasks.TargetProgress:
		r.logger.Debug(e.Type.String(), "platform", e.Platform, "account", e.AccountID, "percent", fmt.Sprintf("%.0f", e.Percent()))
	case tasks.JobRestored:
		r.logger.Info(e.Type.String(), "job", e.JobID, "title", e.Title)
	case tasks.TargetRetryScheduled, tasks.TargetManualRequired:
		r.logger.Warn(e.Type.String(), "job", e.JobID, "platform", e.Platform, "account", e.AccountID, "retries", e.RetryCount, "message", e.Message)
	default:
		r.logger.Info(e.Type.String(), "job", e.JobID, "platform", e.Platform, "account", e.AccountID, "from", e.From, "state", e.State)
	}
	return nil
}

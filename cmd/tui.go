package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/desertthunder/vidpub/internal/tasks"
	"github.com/desertthunder/vidpub/internal/ui"
)

// runDashboard runs the scheduler in the background while the dashboard owns the terminal.
// Quitting the dashboard stops the scheduler.
func (r *Runner) runDashboard(ctx context.Context, cancel context.CancelFunc, sched *tasks.Scheduler, source ui.JobSource) error {
	events, unsubscribe := sched.Bus().Subscribe(256)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	model := ui.NewModel(ctx, source, sched, events)
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	cancel()

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	schedErr := <-done

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return schedErr
}

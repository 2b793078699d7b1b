package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vidpub/internal/formatter"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	JobDetailView
)

const activityLimit = 8

// JobSource loads the jobs shown on the dashboard.
type JobSource interface {
	LoadJobsWithTargets(ctx context.Context) ([]*models.Job, error)
}

// Monitor reports scheduler capacity.
type Monitor interface {
	InFlight() int
	MaxConcurrent() int
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	source   JobSource
	monitor  Monitor
	events   <-chan tasks.Event
	closed   bool
	width    int
	height   int
	jobList  list.Model
	jobs     []*models.Job
	selected *models.Job
	progress map[string]tasks.Event // by target fingerprint
	activity []tasks.Event
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a dashboard reading jobs from source and following events.
func NewModel(ctx context.Context, source JobSource, monitor Monitor, events <-chan tasks.Event) *Model {
	jobList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobList.Title = "Upload Jobs"

	return &Model{
		ctx:      ctx,
		view:     JobListView,
		source:   source,
		monitor:  monitor,
		events:   events,
		jobList:  jobList,
		progress: make(map[string]tasks.Event),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init loads the jobs and starts listening for scheduler events.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadJobs(), m.waitForEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-(activityLimit+6))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleListKeys(msg)
		case JobDetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsLoaded:
		data := msg.data.(jobsLoaded)
		m.err = data.err
		if data.err != nil {
			return m, nil
		}
		m.jobs = data.jobs
		cmd := m.jobList.SetItems(jobItems(data.jobs))
		if m.selected != nil {
			m.selected = m.findJob(m.selected.ID)
		}
		return m, cmd

	case MsgSchedulerEvent:
		e := msg.data.(tasks.Event)
		if e.Type == tasks.TargetProgress {
			m.progress[e.Fingerprint] = e
			return m, m.waitForEvent()
		}

		m.record(e)
		if e.Type == tasks.TargetStateChanged && e.State != models.StateUploading {
			delete(m.progress, e.Fingerprint)
		}
		if e.Type == tasks.TargetDue {
			return m, m.waitForEvent()
		}
		return m, tea.Batch(m.loadJobs(), m.waitForEvent())

	case MsgEventsClosed:
		m.closed = true
	}
	return m, nil
}

func (m *Model) record(e tasks.Event) {
	m.activity = append(m.activity, e)
	if len(m.activity) > activityLimit {
		m.activity = m.activity[len(m.activity)-activityLimit:]
	}
}

func (m *Model) findJob(id string) *models.Job {
	for _, job := range m.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case JobDetailView:
		return m.renderDetail()
	default:
		return m.renderList()
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadJobs()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.jobList.SelectedItem().(jobItem); ok {
			m.selected = item.job
			m.view = JobDetailView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = JobListView
		m.selected = nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadJobs()
	}
	return m, nil
}

func (m *Model) loadJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.source.LoadJobsWithTargets(m.ctx)
		return jobsLoadedMsg(jobs, err)
	}
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case e, ok := <-m.events:
			if !ok {
				return eventsClosedMsg()
			}
			return schedulerEventMsg(e)
		case <-m.ctx.Done():
			return eventsClosedMsg()
		}
	}
}

func (m *Model) renderStatus() string {
	status := "scheduler idle"
	if m.monitor != nil {
		status = fmt.Sprintf("uploading %d/%d", m.monitor.InFlight(), m.monitor.MaxConcurrent())
	}
	if m.closed {
		status += " • event stream closed"
	}
	if m.err != nil {
		status += " • " + styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return styles.help.Render(status)
}

func (m *Model) renderActivity() string {
	if len(m.activity) == 0 {
		return styles.help.Render("No activity yet.")
	}

	var b strings.Builder
	for _, e := range m.activity {
		fmt.Fprintf(&b, "%s  %s", e.At.Local().Format("15:04:05"), describe(e))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderList() string {
	helpView := m.help.ShortHelpView(m.keys.ShortHelp())
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", m.renderStatus(), m.jobList.View(), m.renderActivity(), helpView)
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return styles.err.Render("Job no longer exists\n\nPress esc to go back")
	}

	title := styles.title.Render(m.selected.Title)
	detail := strings.TrimRight(string(formatter.JobDetail(m.selected)), "\n")

	var uploads []string
	for _, t := range m.selected.Targets {
		if e, ok := m.progress[t.Fingerprint]; ok {
			uploads = append(uploads, fmt.Sprintf("  %s/%s %s %5.1f%%", t.Platform, t.AccountID, bar(e.Percent(), 20), e.Percent()))
		}
	}
	sort.Strings(uploads)

	var progress string
	if len(uploads) > 0 {
		progress = "\n\n" + styles.warn.Render("Uploading") + "\n" + strings.Join(uploads, "\n")
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n%s%s\n\n%s", title, detail, progress, helpView)
}

func describe(e tasks.Event) string {
	target := fmt.Sprintf("%s/%s", e.Platform, e.AccountID)
	switch e.Type {
	case tasks.JobRestored:
		return fmt.Sprintf("restored %q", e.Title)
	case tasks.TargetDue:
		return fmt.Sprintf("%s due for %q", target, e.Title)
	case tasks.TargetStateChanged:
		from := e.From
		if from == "" {
			from = "new"
		}
		line := fmt.Sprintf("%s %s → %s", target, from, styles.State(e.State))
		if e.ResultID != "" {
			line += " (" + e.ResultID + ")"
		}
		if e.PublishAt != nil {
			line += ", publishes " + e.PublishAt.UTC().Format("2006-01-02 15:04 UTC")
		}
		return line
	case tasks.TargetRetryScheduled:
		return styles.warn.Render(fmt.Sprintf("%s retry %d: %s", target, e.RetryCount, e.Message))
	case tasks.TargetManualRequired:
		return styles.warn.Render(fmt.Sprintf("%s needs manual action: %s", target, e.Message))
	default:
		return e.Type.String()
	}
}

func bar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/tasks"
)

type fakeSource struct {
	jobs  []*models.Job
	err   error
	loads int
}

func (f *fakeSource) LoadJobsWithTargets(context.Context) ([]*models.Job, error) {
	f.loads++
	return f.jobs, f.err
}

type fakeMonitor struct{ inFlight, max int }

func (f fakeMonitor) InFlight() int      { return f.inFlight }
func (f fakeMonitor) MaxConcurrent() int { return f.max }

func sampleJobs() []*models.Job {
	job := models.NewJob("/media/launch.mp4", "Launch Day", models.KindLong)
	yt := job.AddTarget(models.YouTube, "main", nil, models.ScheduleLocal)
	yt.State = models.StateUploading
	job.AddTarget(models.TikTok, "creator", nil, models.ScheduleLocal)

	clip := models.NewJob("/media/clip.mp4", "Clip", models.KindShort)
	clip.AddTarget(models.Instagram, "brand", nil, models.ScheduleLocal)
	return []*models.Job{job, clip}
}

func newTestModel(t *testing.T, source *fakeSource, events chan tasks.Event) *Model {
	t.Helper()

	m := NewModel(context.Background(), source, fakeMonitor{inFlight: 1, max: 2}, events)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.loadJobs()())
	return m
}

func press(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestModel(t *testing.T) {
	t.Run("lists jobs with status", func(t *testing.T) {
		source := &fakeSource{jobs: sampleJobs()}
		m := newTestModel(t, source, nil)

		view := m.View()
		for _, want := range []string{"Upload Jobs", "Launch Day", "uploading 1/2", "No activity yet."} {
			if !strings.Contains(view, want) {
				t.Errorf("view missing %q\n%s", want, view)
			}
		}
	})

	t.Run("load error is shown", func(t *testing.T) {
		source := &fakeSource{err: errors.New("database locked")}
		m := newTestModel(t, source, nil)

		if !strings.Contains(m.View(), "database locked") {
			t.Errorf("expected error in view\n%s", m.View())
		}
	})

	t.Run("enter opens details and esc returns", func(t *testing.T) {
		source := &fakeSource{jobs: sampleJobs()}
		m := newTestModel(t, source, nil)

		m.Update(press("enter"))
		if m.view != JobDetailView {
			t.Fatalf("expected detail view, got %v", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "Title: Launch Day") || !strings.Contains(view, "tiktok/creator") {
			t.Errorf("detail missing job fields\n%s", view)
		}

		m.Update(press("esc"))
		if m.view != JobListView || m.selected != nil {
			t.Error("expected to return to the list")
		}
	})

	t.Run("refresh reloads", func(t *testing.T) {
		source := &fakeSource{jobs: sampleJobs()}
		m := newTestModel(t, source, nil)

		_, cmd := m.Update(press("r"))
		if cmd == nil {
			t.Fatal("expected a load command")
		}
		cmd()
		if source.loads != 2 {
			t.Errorf("expected 2 loads, got %d", source.loads)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := newTestModel(t, &fakeSource{}, nil)
		_, cmd := m.Update(press("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}

func TestModelEvents(t *testing.T) {
	at := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("progress updates the detail view", func(t *testing.T) {
		jobs := sampleJobs()
		m := newTestModel(t, &fakeSource{jobs: jobs}, nil)
		m.Update(press("enter"))

		yt := jobs[0].Targets[0]
		m.Update(schedulerEventMsg(tasks.Event{
			Type:        tasks.TargetProgress,
			At:          at,
			Fingerprint: yt.Fingerprint,
			Platform:    yt.Platform,
			AccountID:   yt.AccountID,
			Sent:        50,
			Total:       100,
		}))

		view := m.View()
		if !strings.Contains(view, "Uploading") || !strings.Contains(view, "50.0%") {
			t.Errorf("expected progress in view\n%s", view)
		}
		if len(m.activity) != 0 {
			t.Error("progress should not be recorded as activity")
		}
	})

	t.Run("state change reloads and clears progress", func(t *testing.T) {
		jobs := sampleJobs()
		source := &fakeSource{jobs: jobs}
		m := newTestModel(t, source, nil)
		fp := jobs[0].Targets[0].Fingerprint
		m.progress[fp] = tasks.Event{Type: tasks.TargetProgress, Fingerprint: fp}

		_, cmd := m.Update(schedulerEventMsg(tasks.Event{
			Type:        tasks.TargetStateChanged,
			At:          at,
			Fingerprint: fp,
			Platform:    models.YouTube,
			AccountID:   "main",
			From:        models.StateUploading,
			State:       models.StateDone,
			ResultID:    "vid123",
		}))
		if cmd == nil {
			t.Fatal("expected reload command")
		}
		if _, ok := m.progress[fp]; ok {
			t.Error("expected progress to be cleared")
		}
		if !strings.Contains(m.View(), "youtube/main uploading → done (vid123)") {
			t.Errorf("expected activity line\n%s", m.View())
		}
	})

	t.Run("activity is bounded", func(t *testing.T) {
		m := newTestModel(t, &fakeSource{}, nil)
		for i := range activityLimit + 3 {
			m.Update(schedulerEventMsg(tasks.Event{Type: tasks.TargetRetryScheduled, At: at, RetryCount: i}))
		}
		if len(m.activity) != activityLimit {
			t.Errorf("expected %d entries, got %d", activityLimit, len(m.activity))
		}
		if m.activity[len(m.activity)-1].RetryCount != activityLimit+2 {
			t.Error("expected the newest entries to be kept")
		}
	})

	t.Run("waits on the subscription", func(t *testing.T) {
		events := make(chan tasks.Event, 1)
		m := newTestModel(t, &fakeSource{}, events)

		events <- tasks.Event{Type: tasks.JobRestored, Title: "Launch Day"}
		msg, ok := m.waitForEvent()().(Msg)
		if !ok || msg.kind != MsgSchedulerEvent {
			t.Fatalf("expected scheduler event, got %#v", msg)
		}

		close(events)
		msg = m.waitForEvent()().(Msg)
		if msg.kind != MsgEventsClosed {
			t.Fatalf("expected closed message, got %v", msg.kind)
		}
		m.Update(msg)
		if !strings.Contains(m.View(), "event stream closed") {
			t.Error("expected closed status")
		}
	})

	t.Run("no subscription", func(t *testing.T) {
		m := newTestModel(t, &fakeSource{}, nil)
		if m.waitForEvent() != nil {
			t.Error("expected nil command without events")
		}
	})
}

func TestDescribe(t *testing.T) {
	publishAt := time.Date(2030, 2, 1, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		event tasks.Event
		want  string
	}{
		{tasks.Event{Type: tasks.JobRestored, Title: "Clip"}, `restored "Clip"`},
		{tasks.Event{Type: tasks.TargetDue, Platform: models.TikTok, AccountID: "c", Title: "Clip"}, `tiktok/c due for "Clip"`},
		{tasks.Event{Type: tasks.TargetStateChanged, Platform: models.TikTok, AccountID: "c", State: models.StatePending}, "tiktok/c new → pending"},
		{tasks.Event{Type: tasks.TargetStateChanged, Platform: models.YouTube, AccountID: "main", From: models.StateUploading, State: models.StateDone, ResultID: "vid9", PublishAt: &publishAt}, "(vid9), publishes 2030-02-01 18:00 UTC"},
		{tasks.Event{Type: tasks.TargetManualRequired, Platform: models.TikTok, AccountID: "c", Message: "manual-only"}, "needs manual action: manual-only"},
	}

	for _, tt := range tests {
		if got := describe(tt.event); !strings.Contains(got, tt.want) {
			t.Errorf("describe(%v) = %q, want %q", tt.event.Type, got, tt.want)
		}
	}
}

func TestBar(t *testing.T) {
	if got := bar(50, 4); got != "[██░░]" {
		t.Errorf("unexpected bar %q", got)
	}
	if got := bar(150, 2); got != "[██]" {
		t.Errorf("expected clamp, got %q", got)
	}
}

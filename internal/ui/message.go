package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsLoaded MsgKind = iota
	MsgSchedulerEvent
	MsgEventsClosed
)

type jobsLoaded struct {
	jobs []*models.Job
	err  error
}

// jobsLoadedMsg is the constructor for [MsgJobsLoaded]
func jobsLoadedMsg(jobs []*models.Job, err error) Msg {
	return Msg{kind: MsgJobsLoaded, data: jobsLoaded{jobs, err}}
}

// schedulerEventMsg is the constructor for [MsgSchedulerEvent]
func schedulerEventMsg(e tasks.Event) Msg {
	return Msg{kind: MsgSchedulerEvent, data: e}
}

// eventsClosedMsg is the constructor for [MsgEventsClosed]
func eventsClosedMsg() Msg {
	return Msg{kind: MsgEventsClosed}
}

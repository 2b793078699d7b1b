package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/vidpub/internal/models"
)

// EventType names a scheduler lifecycle event.
type EventType int

const (
	JobRestored EventType = iota
	TargetDue
	TargetStateChanged
	TargetRetryScheduled
	TargetManualRequired
	TargetProgress
)

func (t EventType) String() string {
	switch t {
	case JobRestored:
		return "job.restored"
	case TargetDue:
		return "target.due"
	case TargetStateChanged:
		return "target.state_changed"
	case TargetRetryScheduled:
		return "target.retry_scheduled"
	case TargetManualRequired:
		return "target.manual_required"
	case TargetProgress:
		return "target.progress"
	default:
		return ""
	}
}

// Event is a lifecycle notification. Target fields are zero for job-level events.
type Event struct {
	Type        EventType
	At          time.Time
	JobID       string
	Title       string
	Fingerprint string
	Platform    models.Platform
	AccountID   string
	From        models.TargetState // Previous state for [TargetStateChanged]
	State       models.TargetState
	ResultID    string
	PublishAt   *time.Time // Platform-held publish time of a scheduled upload
	RetryCount  int
	NextRetryAt *time.Time
	Message     string
	Sent        int64 // Bytes sent for [TargetProgress]
	Total       int64
}

// Percent reports progress in [0, 100] for [TargetProgress] events.
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.Sent) / float64(e.Total) * 100
}

func targetEvent(typ EventType, at time.Time, job *models.Job, t *models.Target) Event {
	return Event{
		Type:        typ,
		At:          at,
		JobID:       job.ID,
		Title:       job.Title,
		Fingerprint: t.Fingerprint,
		Platform:    t.Platform,
		AccountID:   t.AccountID,
		State:       t.State,
		ResultID:    t.ResultID,
		RetryCount:  t.RetryCount,
		NextRetryAt: t.NextRetryAt,
		Message:     t.LastError,
	}
}

func jobRestoredEvent(at time.Time, job *models.Job) Event {
	return Event{
		Type:    JobRestored,
		At:      at,
		JobID:   job.ID,
		Title:   job.Title,
		State:   job.State(),
		Message: fmt.Sprintf("restored %d targets", len(job.Targets)),
	}
}

func dueEvent(at time.Time, job *models.Job, t *models.Target) Event {
	e := targetEvent(TargetDue, at, job, t)
	e.Message = fmt.Sprintf("%s/%s is due", t.Platform, t.AccountID)
	return e
}

func stateChangedEvent(at time.Time, job *models.Job, t *models.Target, from models.TargetState) Event {
	e := targetEvent(TargetStateChanged, at, job, t)
	e.From = from
	return e
}

func retryScheduledEvent(at time.Time, job *models.Job, t *models.Target) Event {
	return targetEvent(TargetRetryScheduled, at, job, t)
}

func manualRequiredEvent(at time.Time, job *models.Job, t *models.Target) Event {
	return targetEvent(TargetManualRequired, at, job, t)
}

func progressEvent(at time.Time, job *models.Job, t *models.Target, sent, total int64) Event {
	e := targetEvent(TargetProgress, at, job, t)
	e.Sent, e.Total = sent, total
	return e
}

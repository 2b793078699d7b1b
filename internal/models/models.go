package models

import (
	"fmt"
	"time"
)

// Platform identifies a remote publishing destination.
type Platform string

const (
	YouTube   Platform = "youtube"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
)

// Platforms lists every supported platform in display order.
func Platforms() []Platform {
	return []Platform{YouTube, Facebook, Instagram, TikTok}
}

// ParsePlatform validates s as a [Platform].
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// SupportsNativeSchedule reports whether the platform itself can hold a post until a publish time.
func (p Platform) SupportsNativeSchedule() bool {
	return p == YouTube || p == Facebook
}

// ContentKind distinguishes long-form from short-form media.
type ContentKind string

const (
	KindLong  ContentKind = "long"
	KindShort ContentKind = "short"
)

// ParseContentKind validates s as a [ContentKind]; empty means long.
func ParseContentKind(s string) (ContentKind, error) {
	switch ContentKind(s) {
	case "", KindLong:
		return KindLong, nil
	case KindShort:
		return KindShort, nil
	}
	return "", fmt.Errorf("%w: content kind %q", ErrInvalidJob, s)
}

// ScheduleMode selects who enforces a target's publish time.
type ScheduleMode string

const (
	// ScheduleLocal delays the dispatch until the scheduled instant.
	ScheduleLocal ScheduleMode = "local"
	// ScheduleNative hands the publish time to the platform at upload.
	ScheduleNative ScheduleMode = "native"
)

// TargetState is a node in the per-target state machine.
type TargetState string

const (
	StatePending        TargetState = "pending"
	StateUploading      TargetState = "uploading"
	StateDone           TargetState = "done"
	StateFailed         TargetState = "failed"
	StateManualRequired TargetState = "manual_required"
)

// Job is one media file and its publishing metadata.
type Job struct {
	ID               string
	FilePath         string
	OriginalFilePath string
	Title            string
	Description      string
	Tags             []string
	ThumbnailPath    string
	Kind             ContentKind
	CopyrightStatus  string
	CreatedAt        time.Time
	Targets          []*Target
}

// NewJob creates a job with a fresh ID for the file at path.
func NewJob(path, title string, kind ContentKind) *Job {
	return &Job{
		ID:               newID(),
		FilePath:         path,
		OriginalFilePath: path,
		Title:            title,
		Kind:             kind,
		CreatedAt:        time.Now().UTC(),
	}
}

// AddTarget appends a pending target for platform/account and computes its fingerprint.
// A nil scheduledAt means "as soon as possible".
func (j *Job) AddTarget(platform Platform, account string, scheduledAt *time.Time, mode ScheduleMode) *Target {
	if mode == "" {
		mode = ScheduleLocal
	}
	var at *time.Time
	if scheduledAt != nil {
		utc := scheduledAt.UTC().Truncate(time.Microsecond)
		at = &utc
	}

	t := &Target{
		ID:           newID(),
		JobID:        j.ID,
		Platform:     platform,
		AccountID:    account,
		ScheduledAt:  at,
		ScheduleMode: mode,
		State:        StatePending,
		Fingerprint:  Fingerprint(j.FilePath, platform, account, at, j.Title),
		UpdatedAt:    time.Now().UTC(),
	}
	j.Targets = append(j.Targets, t)
	return t
}

// Validate checks the job and its targets before they are persisted.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	if j.FilePath == "" {
		return fmt.Errorf("%w: missing file path", ErrInvalidJob)
	}
	if _, err := ParseContentKind(string(j.Kind)); err != nil {
		return err
	}
	if len(j.Targets) == 0 {
		return fmt.Errorf("%w: job %s has no targets", ErrInvalidJob, j.ID)
	}
	for _, t := range j.Targets {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// State aggregates target states: done only when every target is done, uploading while any
// target is in flight, failed when a target ended without a retry pending (manual_required
// included), pending otherwise.
func (j *Job) State() TargetState {
	if len(j.Targets) == 0 {
		return StatePending
	}

	var done, uploading, failed int
	for _, t := range j.Targets {
		switch {
		case t.State == StateDone:
			done++
		case t.State == StateUploading:
			uploading++
		case t.State == StateFailed && t.NextRetryAt == nil, t.State == StateManualRequired:
			failed++
		}
	}

	switch {
	case done == len(j.Targets):
		return StateDone
	case uploading > 0:
		return StateUploading
	case failed > 0:
		return StateFailed
	default:
		return StatePending
	}
}

// Target is a single (platform, account, schedule) destination of a [Job].
type Target struct {
	ID           string
	JobID        string
	Platform     Platform
	AccountID    string
	ScheduledAt  *time.Time
	ScheduleMode ScheduleMode
	State        TargetState
	ResultID     string
	Fingerprint  string
	RetryCount   int
	NextRetryAt  *time.Time
	LastError    string
	UpdatedAt    time.Time
}

// Validate checks the target's enumerations and dedup key.
func (t *Target) Validate() error {
	if _, err := ParsePlatform(string(t.Platform)); err != nil {
		return err
	}
	if t.ScheduleMode != ScheduleLocal && t.ScheduleMode != ScheduleNative {
		return fmt.Errorf("%w: schedule mode %q", ErrInvalidJob, t.ScheduleMode)
	}
	if t.ScheduledAt != nil && t.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: zero scheduled time", ErrInvalidJob)
	}
	if t.Fingerprint == "" {
		return fmt.Errorf("%w: missing fingerprint", ErrInvalidJob)
	}
	if t.RetryCount < 0 {
		return fmt.Errorf("%w: negative retry count", ErrInvalidJob)
	}
	return nil
}

// NativeScheduled reports whether the platform, not the scheduler, enforces this target's publish time.
func (t *Target) NativeScheduled() bool {
	return t.ScheduleMode == ScheduleNative && t.ScheduledAt != nil && t.Platform.SupportsNativeSchedule()
}

// DispatchAt is the earliest instant the scheduler may dispatch a pending target.
func (t *Target) DispatchAt(now time.Time) time.Time {
	if t.ScheduledAt == nil || t.NativeScheduled() {
		return now
	}
	return *t.ScheduledAt
}

// IsDue applies the dispatch rule: pending and past its dispatch instant, or failed
// with an elapsed retry instant.
func (t *Target) IsDue(now time.Time) bool {
	switch t.State {
	case StatePending:
		return !t.DispatchAt(now).After(now)
	case StateFailed:
		return t.NextRetryAt != nil && !t.NextRetryAt.After(now)
	}
	return false
}

// Published reports whether the target already reached the remote platform.
func (t *Target) Published() bool {
	return t.State == StateDone && t.ResultID != ""
}

// Terminal reports whether no further dispatch will happen without re-enqueueing.
func (t *Target) Terminal() bool {
	switch t.State {
	case StateDone, StateManualRequired:
		return true
	case StateFailed:
		return t.NextRetryAt == nil
	}
	return false
}

// package tasks implements the upload scheduler.
//
// The core abstraction is Scheduler, which persists enqueued jobs, polls the store for due
// targets, and dispatches them through a bounded worker pool. Lifecycle changes are emitted
// on a Bus for the CLI and dashboard.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/repositories"
	"github.com/desertthunder/vidpub/internal/services"
	"github.com/desertthunder/vidpub/internal/shared"
)

// DefaultBackoff is the retry schedule used when none is configured.
var DefaultBackoff = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}

// Store is the persistence the scheduler depends on. Implemented by [*repositories.Store].
type Store interface {
	SaveJob(ctx context.Context, job *models.Job) (skipped []string, err error)
	UpsertJob(ctx context.Context, job *models.Job) error
	GetTarget(ctx context.Context, fingerprint string) (*models.Target, error)
	ClaimTarget(ctx context.Context, target *models.Target) error
	UpdateTargetState(ctx context.Context, fingerprint string, state models.TargetState, opts ...repositories.TargetUpdateOption) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]repositories.DueTarget, error)
	LoadJobsWithTargets(ctx context.Context) ([]*models.Job, error)
}

// Dispatcher publishes one target. Implemented by [*services.Dispatcher].
type Dispatcher interface {
	Dispatch(ctx context.Context, req *services.PublishRequest) (*services.PublishResult, error)
}

// CopyrightScanner checks a media file before its first dispatch and may return a fixed copy.
type CopyrightScanner interface {
	ScanAndFix(ctx context.Context, path string) (fixedPath, status string, err error)
}

// Options configures a [Scheduler]. Zero values fall back to defaults.
type Options struct {
	PollInterval  time.Duration
	MaxConcurrent int
	Backoff       []time.Duration // nil means [DefaultBackoff]; empty disables retries
	Scanner       CopyrightScanner
	Bus           *Bus
	Logger        *log.Logger
	Clock         func() time.Time
}

// OptionsFromConfig maps the [scheduler] config section.
func OptionsFromConfig(cfg shared.SchedulerConfig) Options {
	return Options{
		PollInterval:  cfg.PollInterval.Duration,
		MaxConcurrent: cfg.MaxConcurrent,
		Backoff:       cfg.BackoffSchedule(),
	}
}

// EnqueueReport lists which targets of an enqueued job were queued and which were skipped
// because they are already published or in flight.
type EnqueueReport struct {
	JobID   string
	Queued  []string
	Skipped []string
}

// RecoveryReport summarizes [Scheduler.Recover].
type RecoveryReport struct {
	Jobs      int
	Retried   []string
	Abandoned []string
}

// Scheduler dispatches due targets with bounded concurrency and records every outcome.
type Scheduler struct {
	store         Store
	dispatcher    Dispatcher
	scanner       CopyrightScanner
	bus           *Bus
	logger        *log.Logger
	clock         func() time.Time
	interval      time.Duration
	maxConcurrent int
	backoff       []time.Duration
	inFlight      atomic.Int64

	scanMu sync.Mutex
	scans  map[string]*scanCall // by job ID
}

// scanCall is one copyright scan shared by every target of a job.
type scanCall struct {
	done   chan struct{}
	path   string
	status string
	err    error
}

// NewScheduler creates a scheduler over store and dispatcher.
func NewScheduler(store Store, dispatcher Dispatcher, opts Options) *Scheduler {
	s := &Scheduler{
		store:         store,
		dispatcher:    dispatcher,
		scanner:       opts.Scanner,
		bus:           opts.Bus,
		logger:        opts.Logger,
		clock:         opts.Clock,
		interval:      opts.PollInterval,
		maxConcurrent: opts.MaxConcurrent,
		backoff:       opts.Backoff,
		scans:         make(map[string]*scanCall),
	}

	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	if s.bus == nil {
		s.bus = NewBus(s.logger)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.interval <= 0 {
		s.interval = 5 * time.Second
	}
	if s.maxConcurrent < 1 {
		s.maxConcurrent = 2
	}
	if s.backoff == nil {
		s.backoff = DefaultBackoff
	}
	return s
}

// Bus returns the bus lifecycle events are published on.
func (s *Scheduler) Bus() *Bus { return s.bus }

// InFlight reports how many dispatches are running.
func (s *Scheduler) InFlight() int { return int(s.inFlight.Load()) }

// MaxConcurrent reports the worker pool size.
func (s *Scheduler) MaxConcurrent() int { return s.maxConcurrent }

func (s *Scheduler) now() time.Time {
	return s.clock().UTC()
}

// Enqueue persists job and its targets atomically. Targets already published or uploading
// are skipped; any other target sharing a fingerprint with a stored one is reset to pending
// and the job adopts the stored job ID.
func (s *Scheduler) Enqueue(ctx context.Context, job *models.Job) (*EnqueueReport, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	persist := *job
	persist.Targets = nil
	previous := make(map[string]models.TargetState)
	adopted := false
	report := &EnqueueReport{}

	for _, t := range job.Targets {
		existing, err := s.store.GetTarget(ctx, t.Fingerprint)
		switch {
		case repositories.IsNotFound(err):
		case err != nil:
			return nil, err
		default:
			if !adopted {
				persist.ID, adopted = existing.JobID, true
			}
			if existing.Published() || existing.State == models.StateUploading {
				report.Skipped = append(report.Skipped, t.Fingerprint)
				s.logger.Info("skipping target", "fingerprint", t.Fingerprint, "state", existing.State, "result", existing.ResultID)
				continue
			}
			previous[t.Fingerprint] = existing.State
		}

		t.State = models.StatePending
		t.ResultID, t.LastError = "", ""
		t.RetryCount, t.NextRetryAt = 0, nil
		t.UpdatedAt = now
		persist.Targets = append(persist.Targets, t)
	}

	job.ID = persist.ID
	report.JobID = persist.ID
	if len(persist.Targets) == 0 {
		return report, nil
	}

	kept, err := s.store.SaveJob(ctx, &persist)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	// Rows claimed or published after the check above were kept by the store.
	inFlight := make(map[string]bool, len(kept))
	for _, fp := range kept {
		inFlight[fp] = true
		s.logger.Info("skipping target", "fingerprint", fp, "reason", "claimed during enqueue")
	}
	for _, t := range persist.Targets {
		if inFlight[t.Fingerprint] {
			report.Skipped = append(report.Skipped, t.Fingerprint)
			continue
		}
		report.Queued = append(report.Queued, t.Fingerprint)
		s.bus.Publish(stateChangedEvent(now, &persist, t, previous[t.Fingerprint]))
	}
	s.logger.Info("job enqueued", "job", persist.ID, "queued", len(report.Queued), "skipped", len(report.Skipped))
	return report, nil
}

// Recover reloads every job and fails targets left uploading by a previous process: each
// gets one retry, unless its media file is gone, in which case it fails permanently.
func (s *Scheduler) Recover(ctx context.Context) (*RecoveryReport, error) {
	jobs, err := s.store.LoadJobsWithTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	now := s.now()
	report := &RecoveryReport{Jobs: len(jobs)}
	for _, job := range jobs {
		for _, t := range job.Targets {
			if t.State != models.StateUploading {
				continue
			}

			t.State = models.StateFailed
			if path := mediaPath(job); !shared.FileExists(path) {
				t.NextRetryAt = nil
				t.LastError = fmt.Sprintf("upload interrupted and media file %s no longer exists", path)
				report.Abandoned = append(report.Abandoned, t.Fingerprint)
			} else {
				next := now.Add(s.retryDelay(0))
				t.RetryCount = min(t.RetryCount+1, len(s.backoff))
				t.NextRetryAt = &next
				t.LastError = "upload interrupted; retry scheduled"
				report.Retried = append(report.Retried, t.Fingerprint)
			}

			if err := s.persist(ctx, job, t, models.StateUploading); err != nil {
				return report, err
			}
			if t.NextRetryAt != nil {
				s.bus.Publish(retryScheduledEvent(now, job, t))
			}
		}
		s.bus.Publish(jobRestoredEvent(now, job))
	}

	s.logger.Info("recovery complete", "jobs", report.Jobs, "retried", len(report.Retried), "abandoned", len(report.Abandoned))
	return report, nil
}

// Run polls every interval and dispatches due targets until ctx is cancelled, then waits
// for running dispatches to record their outcome.
func (s *Scheduler) Run(ctx context.Context) error {
	tasks := make(chan repositories.DueTarget, s.maxConcurrent)
	var wg sync.WaitGroup
	s.startWorkers(ctx, &wg, tasks)
	defer func() {
		close(tasks)
		wg.Wait()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval, "max_concurrent", s.maxConcurrent)
	s.tick(ctx, tasks)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "in_flight", s.InFlight())
			return nil
		case <-ticker.C:
			s.tick(ctx, tasks)
		}
	}
}

// RunOnce performs a single poll and waits for the dispatches it started.
// It returns how many targets were dispatched.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	tasks := make(chan repositories.DueTarget, s.maxConcurrent)
	var wg sync.WaitGroup
	s.startWorkers(ctx, &wg, tasks)

	n, err := s.poll(ctx, tasks)
	close(tasks)
	wg.Wait()
	return n, err
}

func (s *Scheduler) tick(ctx context.Context, tasks chan<- repositories.DueTarget) {
	if _, err := s.poll(ctx, tasks); err != nil && ctx.Err() == nil {
		s.logger.Error("poll failed", "error", err)
	}
}

func (s *Scheduler) startWorkers(ctx context.Context, wg *sync.WaitGroup, tasks <-chan repositories.DueTarget) {
	for range s.maxConcurrent {
		wg.Add(1)
		go s.worker(ctx, wg, tasks)
	}
}

// poll claims up to the free worker capacity and hands each claimed target to the pool.
// Sends never block: the channel holds max_concurrent items and at most that many are in flight.
func (s *Scheduler) poll(ctx context.Context, tasks chan<- repositories.DueTarget) (int, error) {
	free := s.maxConcurrent - s.InFlight()
	if free <= 0 {
		return 0, nil
	}

	now := s.now()
	due, err := s.store.ListDue(ctx, now, free)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, d := range due {
		s.bus.Publish(dueEvent(now, d.Job, d.Target))

		from := d.Target.State
		if err := s.store.ClaimTarget(ctx, d.Target); err != nil {
			if errors.Is(err, shared.ErrNotClaimable) {
				s.logger.Debug("target claimed elsewhere", "fingerprint", d.Target.Fingerprint)
				continue
			}
			s.logger.Error("claim failed", "fingerprint", d.Target.Fingerprint, "error", err)
			continue
		}
		s.bus.Publish(stateChangedEvent(now, d.Job, d.Target, from))

		// ListDue shares one job between its targets; each worker gets its own copy.
		job := *d.Job
		d.Job = &job

		s.inFlight.Add(1)
		tasks <- d
		dispatched++
	}
	return dispatched, nil
}

func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, tasks <-chan repositories.DueTarget) {
	defer wg.Done()
	for d := range tasks {
		s.dispatch(ctx, d)
		s.inFlight.Add(-1)
	}
}

// dispatch runs one claimed target to an outcome. Outcomes are persisted with a context
// that survives cancellation so shutdown still records them.
func (s *Scheduler) dispatch(ctx context.Context, d repositories.DueTarget) {
	job, target := d.Job, d.Target
	out := &outcome{
		s:      s,
		ctx:    context.WithoutCancel(ctx),
		job:    job,
		target: target,
		logger: s.logger.With("job", job.ID, "platform", target.Platform, "account", target.AccountID),
	}

	defer func() {
		if r := recover(); r != nil {
			out.logger.Error("dispatch panicked", "panic", r)
			services.NonRetryable(fmt.Sprintf("dispatch panicked: %v", r), nil).Visit(out)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.interrupted(err)
		return
	}

	if err := s.scan(ctx, job); err != nil {
		if ctx.Err() != nil {
			out.interrupted(err)
			return
		}
		services.Classify(err).Visit(out)
		return
	}

	snapshot := *target
	req := &services.PublishRequest{
		Job:    job,
		Target: target,
		Progress: func(sent, total int64) {
			s.bus.Publish(progressEvent(s.now(), job, &snapshot, sent, total))
		},
	}

	out.logger.Info("dispatching", "title", job.Title, "attempt", target.RetryCount+1)
	result, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			out.interrupted(err)
			return
		}
		services.Classify(err).Visit(out)
		return
	}
	out.done(result)
}

// scan runs the copyright collaborator once per job, however many of its targets are in
// flight, and applies the verdict to job.
func (s *Scheduler) scan(ctx context.Context, job *models.Job) error {
	if s.scanner == nil || job.CopyrightStatus != "" {
		return nil
	}

	s.scanMu.Lock()
	call, running := s.scans[job.ID]
	if !running {
		call = &scanCall{done: make(chan struct{})}
		s.scans[job.ID] = call
	}
	s.scanMu.Unlock()

	if running {
		select {
		case <-call.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		s.runScan(ctx, job, call)
	}

	if call.err != nil {
		return call.err
	}
	if call.path != "" {
		job.FilePath = call.path
	}
	job.CopyrightStatus = call.status
	return nil
}

// runScan fills call and persists the verdict. A failed call is forgotten so the next
// dispatch scans again.
func (s *Scheduler) runScan(ctx context.Context, job *models.Job, call *scanCall) {
	call.err = errors.New("copyright scan aborted")
	defer func() {
		if call.err != nil {
			s.scanMu.Lock()
			delete(s.scans, job.ID)
			s.scanMu.Unlock()
		}
		close(call.done)
	}()

	path, status, err := s.scanner.ScanAndFix(ctx, job.FilePath)
	if err != nil {
		call.err = fmt.Errorf("copyright scan failed: %w", err)
		return
	}

	scanned := *job
	if path != "" {
		scanned.FilePath = path
	}
	scanned.CopyrightStatus = status
	if err := s.store.UpsertJob(context.WithoutCancel(ctx), &scanned); err != nil {
		call.err = err
		return
	}
	call.path, call.status, call.err = path, status, nil
}

func (s *Scheduler) retryDelay(i int) time.Duration {
	if i < len(s.backoff) {
		return s.backoff[i]
	}
	return 0
}

// persist writes every mutable target column and announces the transition.
func (s *Scheduler) persist(ctx context.Context, job *models.Job, t *models.Target, from models.TargetState) error {
	if err := s.save(ctx, t); err != nil {
		return err
	}
	s.bus.Publish(stateChangedEvent(s.now(), job, t, from))
	return nil
}

func (s *Scheduler) save(ctx context.Context, t *models.Target) error {
	err := s.store.UpdateTargetState(ctx, t.Fingerprint, t.State,
		repositories.WithResultID(t.ResultID),
		repositories.WithLastError(t.LastError),
		repositories.WithRetryCount(t.RetryCount),
		repositories.WithNextRetryAt(t.NextRetryAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", t.State, t.Fingerprint, err)
	}
	return nil
}

func mediaPath(job *models.Job) string {
	if job.FilePath != "" {
		return job.FilePath
	}
	return job.OriginalFilePath
}

// outcome applies a dispatch result to its target. It implements [services.Outcome].
type outcome struct {
	s      *Scheduler
	ctx    context.Context
	job    *models.Job
	target *models.Target
	logger *log.Logger

	publishAt *time.Time
}

func (o *outcome) done(result *services.PublishResult) {
	t := o.target
	t.State = models.StateDone
	t.ResultID = result.RemoteID
	t.LastError = ""
	t.NextRetryAt = nil
	o.publishAt = result.PublishAt

	for _, w := range result.Warnings {
		o.logger.Warn("published with warning", "warning", w)
	}
	if !o.record() {
		return
	}
	if result.PublishAt != nil {
		o.logger.Info("published", "result", result.RemoteID, "url", result.URL, "publish_at", result.PublishAt.UTC().Format(time.RFC3339))
	} else {
		o.logger.Info("published", "result", result.RemoteID, "url", result.URL)
	}
}

// interrupted puts a target whose dispatch was cut short by shutdown back to pending. The
// retry counter is left alone.
func (o *outcome) interrupted(err error) {
	t := o.target
	t.State = models.StatePending
	t.NextRetryAt = nil
	t.LastError = fmt.Sprintf("interrupted by shutdown: %v", err)
	if o.record() {
		o.logger.Warn("dispatch interrupted", "error", err)
	}
}

func (o *outcome) Retryable(e *services.PublishError) {
	t := o.target
	t.State = models.StateFailed

	if t.RetryCount >= len(o.s.backoff) {
		t.NextRetryAt = nil
		t.LastError = fmt.Sprintf("retries exhausted after %d attempts: %s", t.RetryCount+1, e.Error())
		if o.record() {
			o.logger.Error("giving up", "error", e)
		}
		return
	}

	t.RetryCount++
	next := o.s.now().Add(o.s.backoff[t.RetryCount-1])
	t.NextRetryAt = &next
	t.LastError = e.Error()
	if o.record() {
		o.logger.Warn("retry scheduled", "retry", t.RetryCount, "at", next.Format(time.RFC3339), "error", e)
		o.s.bus.Publish(retryScheduledEvent(o.s.now(), o.job, t))
	}
}

func (o *outcome) NonRetryable(e *services.PublishError) {
	t := o.target
	t.State = models.StateFailed
	t.NextRetryAt = nil
	t.LastError = e.Error()
	if o.record() {
		o.logger.Error("dispatch failed", "error", e)
	}
}

func (o *outcome) ManualRequired(e *services.PublishError) {
	t := o.target
	t.State = models.StateManualRequired
	t.NextRetryAt = nil
	t.LastError = e.Error()
	if o.record() {
		o.logger.Warn("manual action required", "error", e)
		o.s.bus.Publish(manualRequiredEvent(o.s.now(), o.job, t))
	}
}

// record persists the outcome. A failed write leaves the row uploading for startup recovery.
func (o *outcome) record() bool {
	if err := o.s.save(o.ctx, o.target); err != nil {
		o.logger.Error("failed to record outcome", "error", err)
		return false
	}

	e := stateChangedEvent(o.s.now(), o.job, o.target, models.StateUploading)
	e.PublishAt = o.publishAt
	o.s.bus.Publish(e)
	return true
}

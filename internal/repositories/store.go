package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

// querier is satisfied by both [sql.DB] and [sql.Tx].
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DueTarget is a dispatchable target together with the job it belongs to.
type DueTarget struct {
	Job    *models.Job
	Target *models.Target
}

// Store persists jobs and targets. Safe for concurrent use; writers are serialized.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewStore wraps a migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// SetClock replaces the clock used for updated_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

const jobColumns = `id, file_path, original_file_path, title, description, tags, thumbnail_path, kind, copyright_status, created_at`

const targetColumns = `id, job_id, platform, account_id, scheduled_at, schedule_mode, state, result_id, fingerprint, retry_count, next_retry_at, last_error, updated_at`

// SaveJob persists a job and all of its targets in one transaction. Stored targets that
// are uploading or already published are left untouched; their fingerprints are returned.
func (s *Store) SaveJob(ctx context.Context, job *models.Job) ([]string, error) {
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertJob(ctx, tx, job); err != nil {
		return nil, err
	}

	var skipped []string
	for _, t := range job.Targets {
		t.JobID = job.ID
		written, err := upsertTarget(ctx, tx, t, true)
		if err != nil {
			return nil, err
		}
		if !written {
			skipped = append(skipped, t.Fingerprint)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job %s: %w", job.ID, err)
	}
	return skipped, nil
}

// UpsertJob inserts the job or updates its metadata in place.
func (s *Store) UpsertJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, func(tx *sql.Tx) error { return upsertJob(ctx, tx, job) })
}

// UpsertTarget inserts the target under jobID, or updates the row sharing its fingerprint.
// The stored row keeps its original ID and job; target.ID is synced to it.
func (s *Store) UpsertTarget(ctx context.Context, jobID string, target *models.Target) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target.JobID = jobID
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := upsertTarget(ctx, tx, target, false)
		return err
	})
}

// UpdateTargetState moves the target with fingerprint to state and applies opts.
// Only the state, updated_at and the columns named by opts are written.
func (s *Store) UpdateTargetState(ctx context.Context, fingerprint string, state models.TargetState, opts ...TargetUpdateOption) error {
	var u targetUpdate
	for _, opt := range opts {
		opt(&u)
	}

	sets := []string{"state = ?", "updated_at = ?"}
	args := []any{string(state), formatTime(s.now())}

	if u.resultID != nil {
		sets = append(sets, "result_id = ?")
		args = append(args, nullString(*u.resultID))
	}
	if u.lastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, nullString(*u.lastError))
	}
	if u.retryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *u.retryCount)
	}
	if u.nextRetry != nil {
		sets = append(sets, "next_retry_at = ?")
		args = append(args, formatTimePtr(*u.nextRetry))
	}
	args = append(args, fingerprint)

	query := "UPDATE targets SET " + strings.Join(sets, ", ") + " WHERE fingerprint = ?"

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update target %s: %w", fingerprint, err)
		}
		return expectRow(result, fingerprint, shared.ErrTargetNotFound)
	})
}

// ClaimTarget atomically moves a target to uploading, provided its row still has the
// state and updated_at the caller read. Losing the race returns [shared.ErrNotClaimable].
// On success target.State and target.UpdatedAt reflect the claim.
func (s *Store) ClaimTarget(ctx context.Context, target *models.Target) error {
	if target.State != models.StatePending && target.State != models.StateFailed {
		return fmt.Errorf("%w: %s is %s", shared.ErrNotClaimable, target.Fingerprint, target.State)
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE targets SET state = ?, updated_at = ?
			 WHERE fingerprint = ? AND state = ? AND updated_at = ?`,
			string(models.StateUploading), formatTime(now),
			target.Fingerprint, string(target.State), formatTime(target.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to claim target %s: %w", target.Fingerprint, err)
		}
		return expectRow(result, target.Fingerprint, shared.ErrNotClaimable)
	})
	if err != nil {
		return err
	}

	target.State = models.StateUploading
	target.UpdatedAt = now.UTC().Truncate(time.Microsecond)
	return nil
}

// ListDue returns up to limit targets that are dispatchable at now, oldest first.
// A limit below one means no limit.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]DueTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM targets
		 WHERE state = ? OR (state = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
		 ORDER BY COALESCE(next_retry_at, scheduled_at, updated_at), id`,
		string(models.StatePending), string(models.StateFailed), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due targets: %w", err)
	}
	candidates, err := scanTargets(rows)
	if err != nil {
		return nil, err
	}

	jobs := make(map[string]*models.Job)
	var due []DueTarget
	for _, t := range candidates {
		if !t.IsDue(now) {
			continue
		}
		job, ok := jobs[t.JobID]
		if !ok {
			if job, err = getJob(ctx, s.db, t.JobID); err != nil {
				return nil, err
			}
			jobs[t.JobID] = job
		}
		due = append(due, DueTarget{Job: job, Target: t})
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

// GetJob loads one job with its targets.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := getJob(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE job_id = ? ORDER BY platform, account_id, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets for job %s: %w", id, err)
	}
	if job.Targets, err = scanTargets(rows); err != nil {
		return nil, err
	}
	return job, nil
}

// GetTarget loads the target with fingerprint.
func (s *Store) GetTarget(ctx context.Context, fingerprint string) (*models.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query target %s: %w", fingerprint, err)
	}
	targets, err := scanTargets(rows)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrTargetNotFound, fingerprint)
	}
	return targets[0], nil
}

// LoadJobsWithTargets returns every job, oldest first, each with all of its targets.
func (s *Store) LoadJobsWithTargets(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	rows, err = s.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY job_id, platform, account_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	targets, err := scanTargets(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range targets {
		if j, ok := byID[t.JobID]; ok {
			j.Targets = append(j.Targets, t)
		}
	}
	return jobs, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertJob(ctx context.Context, q querier, job *models.Job) error {
	tags, err := encodeTags(job.Tags)
	if err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.OriginalFilePath == "" {
		job.OriginalFilePath = job.FilePath
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			title = excluded.title,
			description = excluded.description,
			tags = excluded.tags,
			thumbnail_path = excluded.thumbnail_path,
			kind = excluded.kind,
			copyright_status = excluded.copyright_status`,
		job.ID, job.FilePath, job.OriginalFilePath, job.Title, job.Description, tags,
		job.ThumbnailPath, string(job.Kind), job.CopyrightStatus, formatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", job.ID, err)
	}
	return nil
}

// upsertTarget writes t keyed by fingerprint. When guarded, a stored row that is uploading
// or published is kept as is and written reports false.
func upsertTarget(ctx context.Context, q querier, t *models.Target, guarded bool) (written bool, err error) {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.UpdatedAt.UTC().Truncate(time.Microsecond)

	query := `INSERT INTO targets (` + targetColumns + `)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET
			platform = excluded.platform,
			account_id = excluded.account_id,
			scheduled_at = excluded.scheduled_at,
			schedule_mode = excluded.schedule_mode,
			state = excluded.state,
			result_id = excluded.result_id,
			retry_count = excluded.retry_count,
			next_retry_at = excluded.next_retry_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`
	args := []any{
		t.ID, t.JobID, string(t.Platform), t.AccountID, formatTimePtr(t.ScheduledAt),
		string(t.ScheduleMode), string(t.State), nullString(t.ResultID), t.Fingerprint,
		t.RetryCount, formatTimePtr(t.NextRetryAt), nullString(t.LastError), formatTime(t.UpdatedAt),
	}
	if guarded {
		query += `
		 WHERE targets.state <> ? AND NOT (targets.state = ? AND targets.result_id IS NOT NULL AND targets.result_id <> '')`
		args = append(args, string(models.StateUploading), string(models.StateDone))
	}
	query += `
		 RETURNING id, job_id`

	var id string
	err = q.QueryRowContext(ctx, query, args...).Scan(&id, &t.JobID)
	if guarded && errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert target %s: %w", t.Fingerprint, err)
	}
	t.ID = id
	return true, nil
}

func getJob(ctx context.Context, q querier, id string) (*models.Job, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", id, err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return jobs[0], nil
}

func scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		var (
			j                models.Job
			tags, kind, made string
		)
		if err := rows.Scan(&j.ID, &j.FilePath, &j.OriginalFilePath, &j.Title, &j.Description,
			&tags, &j.ThumbnailPath, &kind, &j.CopyrightStatus, &made); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		var err error
		if j.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		if j.CreatedAt, err = parseTime(made); err != nil {
			return nil, err
		}
		j.Kind = models.ContentKind(kind)
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanTargets(rows *sql.Rows) ([]*models.Target, error) {
	defer rows.Close()

	var targets []*models.Target
	for rows.Next() {
		var (
			t                              models.Target
			platform, mode, state, updated string
			scheduled, result, next, last  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.JobID, &platform, &t.AccountID, &scheduled, &mode, &state,
			&result, &t.Fingerprint, &t.RetryCount, &next, &last, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}

		var err error
		if t.ScheduledAt, err = parseTimePtr(scheduled); err != nil {
			return nil, err
		}
		if t.NextRetryAt, err = parseTimePtr(next); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		t.Platform = models.Platform(platform)
		t.ScheduleMode = models.ScheduleMode(mode)
		t.State = models.TargetState(state)
		t.ResultID = result.String
		t.LastError = last.String
		targets = append(targets, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate targets: %w", err)
	}
	return targets, nil
}

func expectRow(result sql.Result, key string, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", notFound, key)
	}
	return nil
}

// IsNotFound reports whether err means a job or target row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrJobNotFound) || errors.Is(err, shared.ErrTargetNotFound)
}

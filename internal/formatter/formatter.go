// package formatter renders jobs and account reports as plain text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

// Formats lists the values accepted by [FormatJobs].
var Formats = []string{"text", "csv", "markdown", "json"}

const timeLayout = "2006-01-02 15:04 MST"

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatJobs renders jobs in the named format.
func FormatJobs(jobs []*models.Job, format string) ([]byte, error) {
	switch format {
	case "", "text":
		return JobsToText(jobs)
	case "csv":
		return JobsToCSV(jobs)
	case "markdown", "md":
		return JobsToMarkdown(jobs)
	case "json":
		return JobsToJSON(jobs)
	}
	return nil, fmt.Errorf("%w: format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
}

// JobsToCSV writes one row per target with columns: Job, Title, Platform, Account, State,
// Scheduled, Mode, Retries, Next Retry, Result, Last Error
func JobsToCSV(jobs []*models.Job) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Job", "Title", "Platform", "Account", "State", "Scheduled", "Mode", "Retries", "Next Retry", "Result", "Last Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, job := range jobs {
		for _, t := range job.Targets {
			record := []string{
				job.ID,
				job.Title,
				string(t.Platform),
				t.AccountID,
				string(t.State),
				rfc3339(t.ScheduledAt),
				string(t.ScheduleMode),
				strconv.Itoa(t.RetryCount),
				rfc3339(t.NextRetryAt),
				t.ResultID,
				t.LastError,
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func rfc3339(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// JobsToMarkdown renders a section per job with a table of its targets.
func JobsToMarkdown(jobs []*models.Job) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Upload Jobs\n\n")
	buf.WriteString(fmt.Sprintf("**Jobs**: %d\n\n", len(jobs)))

	for _, job := range jobs {
		buf.WriteString(fmt.Sprintf("## %s\n\n", job.Title))
		buf.WriteString(fmt.Sprintf("**ID**: `%s`\n", job.ID))
		buf.WriteString(fmt.Sprintf("**File**: `%s`\n", job.FilePath))
		buf.WriteString(fmt.Sprintf("**Kind**: %s\n", job.Kind))
		buf.WriteString(fmt.Sprintf("**State**: %s\n\n", job.State()))

		buf.WriteString("| Platform | Account | State | Scheduled | Retries | Result | Last Error |\n")
		buf.WriteString("|---|---|---|---|---|---|---|\n")
		for _, t := range job.Targets {
			buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s | %s |\n",
				t.Platform, t.AccountID, t.State, formatTime(t.ScheduledAt), t.RetryCount,
				orDash(t.ResultID), escapeCell(orDash(t.LastError))))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// JobsToText renders one line per job followed by an indented line per target.
func JobsToText(jobs []*models.Job) ([]byte, error) {
	var buf bytes.Buffer

	if len(jobs) == 0 {
		buf.WriteString("No jobs.\n")
		return buf.Bytes(), nil
	}

	for _, job := range jobs {
		buf.WriteString(fmt.Sprintf("%s  %s  [%s]\n", job.ID, job.Title, job.State()))
		for _, t := range job.Targets {
			line := fmt.Sprintf("  %-9s %-12s %-15s %s", t.Platform, t.AccountID, t.State, formatTime(t.ScheduledAt))
			if t.ResultID != "" {
				line += "  result=" + t.ResultID
			}
			if t.NextRetryAt != nil {
				line += "  retry=" + formatTime(t.NextRetryAt)
			}
			buf.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	return buf.Bytes(), nil
}

type jsonTarget struct {
	Platform     models.Platform     `json:"platform"`
	AccountID    string              `json:"account_id"`
	State        models.TargetState  `json:"state"`
	ScheduledAt  *time.Time          `json:"scheduled_at,omitempty"`
	ScheduleMode models.ScheduleMode `json:"schedule_mode"`
	Fingerprint  string              `json:"fingerprint"`
	ResultID     string              `json:"result_id,omitempty"`
	RetryCount   int                 `json:"retry_count"`
	NextRetryAt  *time.Time          `json:"next_retry_at,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
}

type jsonJob struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	FilePath        string             `json:"file_path"`
	Kind            models.ContentKind `json:"kind"`
	State           models.TargetState `json:"state"`
	CopyrightStatus string             `json:"copyright_status,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	Targets         []jsonTarget       `json:"targets"`
}

// JobsToJSON renders jobs with their computed state as an indented JSON array.
func JobsToJSON(jobs []*models.Job) ([]byte, error) {
	out := make([]jsonJob, 0, len(jobs))
	for _, job := range jobs {
		j := jsonJob{
			ID:              job.ID,
			Title:           job.Title,
			FilePath:        job.FilePath,
			Kind:            job.Kind,
			State:           job.State(),
			CopyrightStatus: job.CopyrightStatus,
			CreatedAt:       job.CreatedAt,
			Targets:         make([]jsonTarget, 0, len(job.Targets)),
		}
		for _, t := range job.Targets {
			j.Targets = append(j.Targets, jsonTarget{
				Platform:     t.Platform,
				AccountID:    t.AccountID,
				State:        t.State,
				ScheduledAt:  t.ScheduledAt,
				ScheduleMode: t.ScheduleMode,
				Fingerprint:  t.Fingerprint,
				ResultID:     t.ResultID,
				RetryCount:   t.RetryCount,
				NextRetryAt:  t.NextRetryAt,
				LastError:    t.LastError,
			})
		}
		out = append(out, j)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jobs: %w", err)
	}
	return append(data, '\n'), nil
}

// JobDetail renders every field of a job and its targets for `jobs show`.
func JobDetail(job *models.Job) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Job: %s\n", job.ID))
	buf.WriteString(fmt.Sprintf("Title: %s\n", job.Title))
	if job.Description != "" {
		buf.WriteString(fmt.Sprintf("Description: %s\n", job.Description))
	}
	if len(job.Tags) > 0 {
		buf.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(job.Tags, ", ")))
	}
	buf.WriteString(fmt.Sprintf("File: %s\n", job.FilePath))
	if job.OriginalFilePath != "" && job.OriginalFilePath != job.FilePath {
		buf.WriteString(fmt.Sprintf("Original: %s\n", job.OriginalFilePath))
	}
	if job.ThumbnailPath != "" {
		buf.WriteString(fmt.Sprintf("Thumbnail: %s\n", job.ThumbnailPath))
	}
	buf.WriteString(fmt.Sprintf("Kind: %s\n", job.Kind))
	buf.WriteString(fmt.Sprintf("Copyright: %s\n", orDash(job.CopyrightStatus)))
	buf.WriteString(fmt.Sprintf("Created: %s\n", formatTime(&job.CreatedAt)))
	buf.WriteString(fmt.Sprintf("State: %s\n", job.State()))

	for i, t := range job.Targets {
		buf.WriteString(fmt.Sprintf("\nTarget %d: %s/%s\n", i+1, t.Platform, t.AccountID))
		buf.WriteString(fmt.Sprintf("  State: %s\n", t.State))
		buf.WriteString(fmt.Sprintf("  Scheduled: %s (%s)\n", formatTime(t.ScheduledAt), t.ScheduleMode))
		buf.WriteString(fmt.Sprintf("  Fingerprint: %s\n", t.Fingerprint))
		buf.WriteString(fmt.Sprintf("  Retries: %d\n", t.RetryCount))
		if t.NextRetryAt != nil {
			buf.WriteString(fmt.Sprintf("  Next retry: %s\n", formatTime(t.NextRetryAt)))
		}
		if t.ResultID != "" {
			buf.WriteString(fmt.Sprintf("  Result: %s\n", t.ResultID))
		}
		if t.LastError != "" {
			buf.WriteString(fmt.Sprintf("  Last error: %s\n", t.LastError))
		}
		if t.State == models.StateManualRequired {
			buf.WriteString("  Needs manual action; no further automatic attempts.\n")
		}
	}

	return buf.Bytes()
}

// AccountsReport lists every account with its validation status, grouped by platform.
func AccountsReport(reg *accounts.Registry) []byte {
	var buf bytes.Buffer

	if reg.Legacy() {
		buf.WriteString(fmt.Sprintf("No accounts file at %s; using legacy single-account mode.\n\n", reg.Path()))
	} else {
		buf.WriteString(fmt.Sprintf("Accounts: %s\n\n", reg.Path()))
	}

	for _, p := range models.Platforms() {
		specs := reg.Accounts(p)
		if len(specs) == 0 {
			continue
		}
		buf.WriteString(fmt.Sprintf("%s\n", p))
		for _, s := range specs {
			marker := " "
			if s.Default || len(s.DefaultFor) > 0 {
				marker = "*"
			}
			line := fmt.Sprintf("  %s %-16s %-18s", marker, s.ID, s.Status)
			if s.Message != "" {
				line += " " + s.Message
			}
			buf.WriteString(strings.TrimRight(line, " ") + "\n")
		}
	}

	counts := reg.Counts()
	buf.WriteString(fmt.Sprintf("\n%d usable, %d invalid config, %d missing credential, %d manual\n",
		counts[accounts.StatusUsable], counts[accounts.StatusInvalidConfig],
		counts[accounts.StatusMissingCredential], counts[accounts.StatusManualRequired]))

	return buf.Bytes()
}

// WriteJobsExport renders jobs in format and writes them to path.
//
// Defaults to jobs.{ext} in the working directory.
func WriteJobsExport(jobs []*models.Job, format, path string) (string, error) {
	data, err := FormatJobs(jobs, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = "jobs." + extension(format)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}

	return path, nil
}

func extension(format string) string {
	switch format {
	case "csv":
		return "csv"
	case "markdown", "md":
		return "md"
	case "json":
		return "json"
	default:
		return "txt"
	}
}

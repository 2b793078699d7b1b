package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
)

// ProgressFunc reports bytes sent out of total during an upload.
type ProgressFunc func(sent, total int64)

// PublishRequest is one dispatch attempt of a target.
type PublishRequest struct {
	Job      *models.Job
	Target   *models.Target
	Account  *accounts.Spec
	Progress ProgressFunc
}

func (r *PublishRequest) progress(sent, total int64) {
	if r.Progress != nil {
		r.Progress(sent, total)
	}
}

// PublishResult identifies the published media on the remote platform.
type PublishResult struct {
	RemoteID string
	URL      string
	// PublishAt is when the media becomes public, if scheduled.
	PublishAt *time.Time
	// Warnings are non-fatal problems, such as a rejected thumbnail.
	Warnings []string
}

// Publisher uploads media to one platform.
type Publisher interface {
	Name() string
	Platform() models.Platform
	Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error)
}

// openMedia opens path and returns the file with its size. A missing file is non-retryable.
func openMedia(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, NonRetryable(fmt.Sprintf("cannot open media %s", path), err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, NonRetryable(fmt.Sprintf("cannot stat media %s", path), err)
	}
	if info.Size() == 0 {
		f.Close()
		return nil, 0, NonRetryable(fmt.Sprintf("media %s is empty", path), nil)
	}
	return f, info.Size(), nil
}

// mediaPath prefers the processed file over the original.
func mediaPath(job *models.Job) string {
	if job.FilePath != "" {
		return job.FilePath
	}
	return job.OriginalFilePath
}

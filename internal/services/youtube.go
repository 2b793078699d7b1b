// YouTube Data API [Publisher] implementation
//
// Videos are sent with the resumable upload protocol: one POST opens a session and the
// file follows in Content-Range chunks. A 308 response acknowledges a chunk and reports
// the persisted range in its Range header.
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

const (
	statusResumeIncomplete = 308
	defaultYouTubeChunk    = 8 << 20
	maxUploadStalls        = 3
	shortsTag              = "Shorts"
)

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`
}

type videoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	PublishAt               string `json:"publishAt,omitempty"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

// YouTubeVideo is the videos resource subset sent on insert and read back on completion.
type YouTubeVideo struct {
	ID      string       `json:"id,omitempty"`
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

// YouTubePublisher uploads videos to a channel authorized by the account's credentials file.
type YouTubePublisher struct {
	uploadURL string
	chunkSize int64
	base      *http.Client
	client    *apiClient
}

// NewYouTubePublisher creates a publisher; a nil client uses [http.DefaultClient].
func NewYouTubePublisher(cfg shared.YouTubeConfig, client *http.Client) *YouTubePublisher {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultYouTubeChunk
	}

	return &YouTubePublisher{
		uploadURL: strings.TrimRight(cfg.UploadURL, "/"),
		chunkSize: chunk,
		base:      client,
		client:    newAPIClient(client, cfg.RequestsPerSecond),
	}
}

func (y *YouTubePublisher) Name() string { return "YouTube" }

func (y *YouTubePublisher) Platform() models.Platform { return models.YouTube }

// Publish uploads the job's media and, when present, its thumbnail.
func (y *YouTubePublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	cfg, ok := req.Account.Config.(accounts.YouTubeConfig)
	if !ok {
		return nil, NonRetryable(fmt.Sprintf("account %s is not a youtube account", req.Account.ID), nil)
	}

	client, err := credentialClient(ctx, y.base, req.Account.Credential)
	if err != nil {
		return nil, Classify(err)
	}

	f, size, err := openMedia(mediaPath(req.Job))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	video := youtubeMetadata(req.Job, req.Target, cfg)
	session, err := y.startSession(ctx, client, video, size)
	if err != nil {
		return nil, Classify(err)
	}

	uploaded, err := y.uploadChunks(ctx, client, session, f, size, req)
	if err != nil {
		return nil, Classify(err)
	}

	result := &PublishResult{RemoteID: uploaded.ID, URL: youtubeURL(uploaded.ID, req.Job.Kind)}
	if req.Target.ScheduledAt != nil {
		at := *req.Target.ScheduledAt
		result.PublishAt = &at
	}

	if req.Job.ThumbnailPath != "" {
		if err := y.setThumbnail(ctx, client, uploaded.ID, req.Job.ThumbnailPath); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("thumbnail: %v", err))
		}
	}
	return result, nil
}

// youtubeMetadata builds the insert body. Native schedules upload privately with publishAt;
// local schedules are already due and use the account's privacy.
func youtubeMetadata(job *models.Job, target *models.Target, cfg accounts.YouTubeConfig) *YouTubeVideo {
	video := &YouTubeVideo{
		Snippet: videoSnippet{
			Title:       truncate(job.Title, 100),
			Description: job.Description,
			Tags:        slices.Clone(job.Tags),
			CategoryID:  cfg.CategoryID,
		},
		Status: videoStatus{PrivacyStatus: cfg.Privacy},
	}
	if video.Status.PrivacyStatus == "" {
		video.Status.PrivacyStatus = "public"
	}

	if target.NativeScheduled() {
		video.Status.PrivacyStatus = "private"
		video.Status.PublishAt = target.ScheduledAt.UTC().Format(time.RFC3339)
	}

	if job.Kind == models.KindShort {
		if !strings.Contains(strings.ToLower(video.Snippet.Description), "#shorts") {
			video.Snippet.Description = strings.TrimSpace(video.Snippet.Description + "\n\n#Shorts")
		}
		if !slices.ContainsFunc(video.Snippet.Tags, func(t string) bool { return strings.EqualFold(t, shortsTag) }) {
			video.Snippet.Tags = append(video.Snippet.Tags, shortsTag)
		}
	}
	return video
}

func (y *YouTubePublisher) startSession(ctx context.Context, client *http.Client, video *YouTubeVideo, size int64) (string, error) {
	endpoint := fmt.Sprintf("%s/videos?uploadType=resumable&part=snippet,status", y.uploadURL)
	req, err := newJSONRequest(ctx, http.MethodPost, endpoint, video)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/*")

	resp, err := y.client.Do(ctx, client, req)
	if err != nil {
		return "", err
	}

	location := resp.Headers.Get("Location")
	if location == "" {
		return "", Retryable("upload session response had no Location", nil)
	}
	return location, nil
}

func (y *YouTubePublisher) uploadChunks(ctx context.Context, client *http.Client, session string, f io.ReaderAt, size int64, pr *PublishRequest) (*YouTubeVideo, error) {
	var offset int64
	stalls := 0

	for {
		n := min(y.chunkSize, size-offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, io.NewSectionReader(f, offset, n))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.ContentLength = n
		req.Header.Set("Content-Type", "video/*")
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+n-1, size))

		resp, err := y.client.Do(ctx, client, req, statusResumeIncomplete)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != statusResumeIncomplete {
			var video YouTubeVideo
			if err := decodeJSON(resp.Body, &video); err != nil {
				return nil, err
			}
			if video.ID == "" {
				return nil, NonRetryable("upload finished without a video id", nil)
			}
			pr.progress(size, size)
			return &video, nil
		}

		next := persistedOffset(resp.Headers.Get("Range"))
		if next <= offset {
			stalls++
			if stalls > maxUploadStalls {
				return nil, Retryable(fmt.Sprintf("upload stalled at byte %d", offset), nil)
			}
		} else {
			stalls = 0
		}
		offset = min(next, size)
		pr.progress(offset, size)

		if offset >= size {
			return nil, Retryable("server acknowledged every byte but did not finish the upload", nil)
		}
	}
}

// persistedOffset parses "bytes=0-N" into N+1. A missing header means nothing was stored.
func persistedOffset(header string) int64 {
	_, last, ok := strings.Cut(strings.TrimPrefix(header, "bytes="), "-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n + 1
}

func (y *YouTubePublisher) setThumbnail(ctx context.Context, client *http.Client, videoID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "image/jpeg"
	}

	endpoint := fmt.Sprintf("%s/thumbnails/set?videoId=%s&uploadType=media", y.uploadURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	_, err = y.client.Do(ctx, client, req)
	return err
}

func youtubeURL(id string, kind models.ContentKind) string {
	if kind == models.KindShort {
		return "https://youtube.com/shorts/" + id
	}
	return "https://www.youtube.com/watch?v=" + id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

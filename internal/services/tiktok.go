// TikTok Content Posting API publisher
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

const (
	minTikTokChunk     = 5 << 20
	maxTikTokChunk     = 64 << 20
	defaultTikTokChunk = 10 << 20
)

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

type tiktokPostInfo struct {
	Title        string `json:"title"`
	PrivacyLevel string `json:"privacy_level"`
}

type tiktokSourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int64  `json:"video_size"`
	ChunkSize       int64  `json:"chunk_size"`
	TotalChunkCount int64  `json:"total_chunk_count"`
}

type tiktokInitRequest struct {
	PostInfo   tiktokPostInfo   `json:"post_info"`
	SourceInfo tiktokSourceInfo `json:"source_info"`
}

type tiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

// TikTokPublisher uploads through the Content Posting API; manual-mode accounts never
// reach the network.
type TikTokPublisher struct {
	apiURL    string
	chunkSize int64
	client    *apiClient
}

// NewTikTokPublisher creates a publisher; a nil client uses [http.DefaultClient].
func NewTikTokPublisher(cfg shared.TikTokConfig, client *http.Client) *TikTokPublisher {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultTikTokChunk
	}
	chunk = max(minTikTokChunk, min(chunk, maxTikTokChunk))

	return &TikTokPublisher{
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		chunkSize: chunk,
		client:    newAPIClient(client, cfg.RequestsPerSecond),
	}
}

func (p *TikTokPublisher) Name() string { return "TikTok" }

func (p *TikTokPublisher) Platform() models.Platform { return models.TikTok }

// Publish initializes a direct post and uploads the file; the result ID is the publish ID.
func (p *TikTokPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	cfg, ok := req.Account.Config.(accounts.TikTokConfig)
	if !ok {
		return nil, NonRetryable(fmt.Sprintf("account %s is not a tiktok account", req.Account.ID), nil)
	}
	if cfg.Mode == accounts.TikTokModeManual {
		return nil, ManualRequired(fmt.Sprintf("account %s uploads manually", req.Account.ID), nil)
	}

	f, size, err := openMedia(mediaPath(req.Job))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunk, count := tiktokChunks(size, p.chunkSize)
	privacy := cfg.PrivacyLevel
	if privacy == "" {
		privacy = "SELF_ONLY"
	}

	initReq, err := newJSONRequest(ctx, http.MethodPost, p.apiURL+"/v2/post/publish/video/init/", tiktokInitRequest{
		PostInfo:   tiktokPostInfo{Title: caption(req.Job), PrivacyLevel: privacy},
		SourceInfo: tiktokSourceInfo{Source: "FILE_UPLOAD", VideoSize: size, ChunkSize: chunk, TotalChunkCount: count},
	})
	if err != nil {
		return nil, err
	}
	initReq.Header.Set("Authorization", "Bearer "+req.Account.Credential)

	var started tiktokInitResponse
	if err := p.client.DoJSON(ctx, nil, initReq, &started); err != nil {
		return nil, classifyTikTok(err)
	}
	if started.Error.Code != "" && started.Error.Code != "ok" {
		return nil, tiktokFailure(0, started.Error)
	}
	if started.Data.UploadURL == "" || started.Data.PublishID == "" {
		return nil, NonRetryable("init returned no upload url", nil)
	}

	for i := range count {
		start := i * chunk
		n := chunk
		if i == count-1 {
			n = size - start
		}

		put, err := http.NewRequestWithContext(ctx, http.MethodPut, started.Data.UploadURL, io.NewSectionReader(f, start, n))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		put.ContentLength = n
		put.Header.Set("Content-Type", "video/mp4")
		put.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+n-1, size))

		if _, err := p.client.Do(ctx, nil, put); err != nil {
			return nil, classifyTikTok(err)
		}
		req.progress(start+n, size)
	}

	return &PublishResult{RemoteID: started.Data.PublishID}, nil
}

// tiktokChunks follows the API's rule: files smaller than a chunk go whole, otherwise
// the last chunk absorbs the remainder.
func tiktokChunks(size, chunk int64) (int64, int64) {
	if size <= chunk {
		return size, 1
	}
	return chunk, size / chunk
}

func classifyTikTok(err error) *PublishError {
	var se *StatusError
	if errors.As(err, &se) {
		var body struct {
			Error tiktokError `json:"error"`
		}
		if json.Unmarshal(se.Body, &body) == nil && body.Error.Code != "" && body.Error.Code != "ok" {
			return tiktokFailure(se.StatusCode, body.Error)
		}
	}
	return Classify(err)
}

func tiktokFailure(status int, e tiktokError) *PublishError {
	msg := fmt.Sprintf("tiktok %s: %s", e.Code, e.Message)
	switch e.Code {
	case "access_token_invalid", "scope_not_authorized", "unaudited_client_can_only_post_to_private_accounts":
		return &PublishError{Kind: KindManualRequired, Message: msg, StatusCode: status}
	case "rate_limit_exceeded", "spam_risk_too_many_pending_share":
		return &PublishError{Kind: KindRetryable, Message: msg, StatusCode: status}
	}
	if status != 0 {
		pe := ClassifyStatus(status, nil)
		pe.Message = msg
		return pe
	}
	return &PublishError{Kind: KindNonRetryable, Message: msg}
}

// Meta Graph API publishers for Facebook pages and Instagram professional accounts
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

// GraphError is the error object of a Graph API response.
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

// permission reports whether the code means the token or its grants must be fixed by hand:
// 10 and 200-299 are permission errors, 190 is an invalid or expired token.
func (e *GraphError) permission() bool {
	return e.Code == 10 || e.Code == 190 || (e.Code >= 200 && e.Code <= 299)
}

// classifyGraph refines a failed Graph call using the error code in its body.
func classifyGraph(err error) *PublishError {
	var se *StatusError
	if errors.As(err, &se) {
		var body struct {
			Error *GraphError `json:"error"`
		}
		if json.Unmarshal(se.Body, &body) == nil && body.Error != nil {
			msg := fmt.Sprintf("graph error %d: %s", body.Error.Code, body.Error.Message)
			if body.Error.permission() {
				return &PublishError{Kind: KindManualRequired, Message: msg, StatusCode: se.StatusCode, Err: err}
			}
			pe := ClassifyStatus(se.StatusCode, nil)
			pe.Message, pe.Err = msg, err
			return pe
		}
	}
	return Classify(err)
}

type graph struct {
	apiURL    string
	uploadURL string
	client    *apiClient
}

func newGraph(cfg shared.GraphConfig, client *http.Client) graph {
	version := strings.Trim(cfg.APIVersion, "/")
	return graph{
		apiURL:    strings.TrimRight(cfg.APIURL, "/") + "/" + version,
		uploadURL: strings.TrimRight(cfg.UploadURL, "/") + "/ig-api-upload/" + version,
		client:    newAPIClient(client, cfg.RequestsPerSecond),
	}
}

func (g graph) request(ctx context.Context, method, path, token string, form url.Values) (*http.Request, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func caption(job *models.Job) string {
	parts := []string{job.Title}
	if job.Description != "" {
		parts = append(parts, job.Description)
	}
	var tags []string
	for _, t := range job.Tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" {
			tags = append(tags, "#"+strings.ReplaceAll(t, " ", ""))
		}
	}
	if len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	return strings.Join(parts, "\n\n")
}

// FacebookPublisher posts videos to a page in a single multipart call.
type FacebookPublisher struct {
	graph
}

// NewFacebookPublisher creates a publisher; a nil client uses [http.DefaultClient].
func NewFacebookPublisher(cfg shared.GraphConfig, client *http.Client) *FacebookPublisher {
	return &FacebookPublisher{graph: newGraph(cfg, client)}
}

func (p *FacebookPublisher) Name() string { return "Facebook" }

func (p *FacebookPublisher) Platform() models.Platform { return models.Facebook }

// Publish uploads the video; native schedules are created unpublished with a publish time.
func (p *FacebookPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	cfg, ok := req.Account.Config.(accounts.FacebookConfig)
	if !ok {
		return nil, NonRetryable(fmt.Sprintf("account %s is not a facebook account", req.Account.ID), nil)
	}

	f, size, err := openMedia(mediaPath(req.Job))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := map[string]string{
		"title":       req.Job.Title,
		"description": caption(req.Job),
	}
	result := &PublishResult{}
	if req.Target.NativeScheduled() {
		at := req.Target.ScheduledAt.UTC()
		fields["published"] = "false"
		fields["scheduled_publish_time"] = strconv.FormatInt(at.Unix(), 10)
		result.PublishAt = &at
	}

	body, contentType := multipartBody(fields, "source", f.Name(), f, size, req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/"+url.PathEscape(cfg.PageID)+"/videos", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+req.Account.Credential)

	var created struct {
		ID string `json:"id"`
	}
	if err := p.client.DoJSON(ctx, nil, httpReq, &created); err != nil {
		return nil, classifyGraph(err)
	}
	if created.ID == "" {
		return nil, NonRetryable("graph returned no video id", nil)
	}

	req.progress(size, size)
	result.RemoteID = created.ID
	result.URL = fmt.Sprintf("https://www.facebook.com/%s/videos/%s", cfg.PageID, created.ID)
	return result, nil
}

// multipartBody streams fields and the file through a pipe so large videos are not buffered.
func multipartBody(fields map[string]string, fileField, name string, file io.Reader, size int64, pr *PublishRequest) (io.Reader, string) {
	pipeR, pipeW := io.Pipe()
	mw := multipart.NewWriter(pipeW)

	go func() {
		err := func() error {
			for k, v := range fields {
				if err := mw.WriteField(k, v); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile(fileField, name)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, &progressReader{r: file, total: size, report: pr.progress}); err != nil {
				return err
			}
			return mw.Close()
		}()
		pipeW.CloseWithError(err)
	}()

	return pipeR, mw.FormDataContentType()
}

type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report func(sent, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}

// InstagramPublisher publishes reels: create a resumable container, upload the bytes, wait
// for processing and publish the container.
type InstagramPublisher struct {
	graph
	pollInterval time.Duration
	timeout      time.Duration
}

// NewInstagramPublisher creates a publisher; a nil client uses [http.DefaultClient].
func NewInstagramPublisher(cfg shared.GraphConfig, client *http.Client) *InstagramPublisher {
	poll, timeout := cfg.PollInterval.Duration, cfg.ProcessingTimeout.Duration
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &InstagramPublisher{graph: newGraph(cfg, client), pollInterval: poll, timeout: timeout}
}

func (p *InstagramPublisher) Name() string { return "Instagram" }

func (p *InstagramPublisher) Platform() models.Platform { return models.Instagram }

// Publish runs the container flow. A container still processing at the timeout is retryable.
func (p *InstagramPublisher) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	cfg, ok := req.Account.Config.(accounts.InstagramConfig)
	if !ok {
		return nil, NonRetryable(fmt.Sprintf("account %s is not an instagram account", req.Account.ID), nil)
	}
	token := req.Account.Credential

	f, size, err := openMedia(mediaPath(req.Job))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	containerID, err := p.createContainer(ctx, cfg.IGUserID, token, req.Job)
	if err != nil {
		return nil, classifyGraph(err)
	}

	if err := p.upload(ctx, containerID, token, f, size, req); err != nil {
		return nil, classifyGraph(err)
	}

	if err := p.waitFinished(ctx, containerID, token); err != nil {
		return nil, classifyGraph(err)
	}

	form := url.Values{"creation_id": {containerID}}
	httpReq, err := p.request(ctx, http.MethodPost, "/"+url.PathEscape(cfg.IGUserID)+"/media_publish", token, form)
	if err != nil {
		return nil, err
	}
	var published struct {
		ID string `json:"id"`
	}
	if err := p.client.DoJSON(ctx, nil, httpReq, &published); err != nil {
		return nil, classifyGraph(err)
	}
	if published.ID == "" {
		return nil, NonRetryable("graph returned no media id", nil)
	}

	return &PublishResult{RemoteID: published.ID, URL: "https://www.instagram.com/reel/" + published.ID}, nil
}

func (p *InstagramPublisher) createContainer(ctx context.Context, igUserID, token string, job *models.Job) (string, error) {
	form := url.Values{
		"media_type":  {"REELS"},
		"upload_type": {"resumable"},
		"caption":     {caption(job)},
	}
	req, err := p.request(ctx, http.MethodPost, "/"+url.PathEscape(igUserID)+"/media", token, form)
	if err != nil {
		return "", err
	}

	var container struct {
		ID string `json:"id"`
	}
	if err := p.client.DoJSON(ctx, nil, req, &container); err != nil {
		return "", err
	}
	if container.ID == "" {
		return "", NonRetryable("graph returned no container id", nil)
	}
	return container.ID, nil
}

func (p *InstagramPublisher) upload(ctx context.Context, containerID, token string, f io.Reader, size int64, pr *PublishRequest) error {
	body := &progressReader{r: f, total: size, report: pr.progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL+"/"+url.PathEscape(containerID), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "OAuth "+token)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.FormatInt(size, 10))

	var resp struct {
		Success bool `json:"success"`
	}
	if err := p.client.DoJSON(ctx, nil, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return Retryable("upload endpoint did not confirm success", nil)
	}
	return nil
}

// waitFinished polls the container's status_code until FINISHED, ERROR or the timeout.
func (p *InstagramPublisher) waitFinished(ctx context.Context, containerID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		req, err := p.request(ctx, http.MethodGet, "/"+url.PathEscape(containerID)+"?fields=status_code,status", token, nil)
		if err != nil {
			return err
		}

		var container struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := p.client.DoJSON(ctx, nil, req, &container); err != nil {
			if ctx.Err() != nil {
				return Retryable(fmt.Sprintf("container %s still processing after %s", containerID, p.timeout), ctx.Err())
			}
			return err
		}

		switch container.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR":
			return NonRetryable(fmt.Sprintf("container %s failed processing: %s", containerID, container.Status), nil)
		case "EXPIRED":
			return Retryable(fmt.Sprintf("container %s expired before publishing", containerID), nil)
		}

		select {
		case <-ctx.Done():
			return Retryable(fmt.Sprintf("container %s still processing after %s", containerID, p.timeout), ctx.Err())
		case <-ticker.C:
		}
	}
}

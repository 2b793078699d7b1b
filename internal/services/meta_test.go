package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
	tu "github.com/desertthunder/vidpub/internal/testing"
)

func graphConfig(serverURL string) shared.GraphConfig {
	return shared.GraphConfig{
		APIURL:            serverURL,
		APIVersion:        "v21.0",
		UploadURL:         serverURL,
		PollInterval:      shared.Duration{Duration: 5 * time.Millisecond},
		ProcessingTimeout: shared.Duration{Duration: time.Second},
	}
}

func graphFailure(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "OAuthException", "code": code},
	})
}

func TestFacebookPublisher(t *testing.T) {
	ctx := context.Background()
	media := tu.WriteMedia(t, t.TempDir(), "clip.mp4", 64)
	account := &accounts.Spec{
		Platform: models.Facebook, ID: "page", Status: accounts.StatusUsable, Credential: "meta-token",
		Config: accounts.FacebookConfig{AccessTokenEnv: "META_TOKEN", PageID: "page1"},
	}

	newRequest := func(at *time.Time, mode models.ScheduleMode) *PublishRequest {
		job := models.NewJob(media, "Launch", models.KindLong)
		job.Tags = []string{"launch day"}
		return &PublishRequest{Job: job, Target: job.AddTarget(models.Facebook, "page", at, mode), Account: account}
	}

	t.Run("uploads in one multipart call", func(t *testing.T) {
		var fields map[string]string
		var fileSize int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/v21.0/page1/videos" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer meta-token" {
				t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("failed to parse multipart: %v", err)
			}
			fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			file, _, err := r.FormFile("source")
			if err != nil {
				t.Fatalf("missing source file: %v", err)
			}
			data, _ := io.ReadAll(file)
			fileSize = len(data)
			io.WriteString(w, `{"id":"fbvid"}`)
		}))
		defer server.Close()

		p := NewFacebookPublisher(graphConfig(server.URL), server.Client())
		result, err := p.Publish(ctx, newRequest(nil, models.ScheduleLocal))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		if result.RemoteID != "fbvid" || result.PublishAt != nil {
			t.Errorf("unexpected result %+v", result)
		}
		if fileSize != 64 {
			t.Errorf("expected 64 bytes, got %d", fileSize)
		}
		if fields["title"] != "Launch" || fields["description"] != "Launch\n\n#launchday" {
			t.Errorf("unexpected fields %v", fields)
		}
		if _, ok := fields["published"]; ok {
			t.Error("immediate upload should not set published")
		}
	})

	t.Run("native schedule", func(t *testing.T) {
		var fields map[string][]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseMultipartForm(1 << 20)
			fields = r.MultipartForm.Value
			io.WriteString(w, `{"id":"fbvid"}`)
		}))
		defer server.Close()

		at := time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)
		p := NewFacebookPublisher(graphConfig(server.URL), server.Client())
		result, err := p.Publish(ctx, newRequest(&at, models.ScheduleNative))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		if fields["published"][0] != "false" || fields["scheduled_publish_time"][0] != "1903856400" {
			t.Errorf("expected scheduled fields, got %v", fields)
		}
		if result.PublishAt == nil || !result.PublishAt.Equal(at) {
			t.Errorf("expected publish time on result, got %v", result.PublishAt)
		}
	})

	t.Run("failures", func(t *testing.T) {
		tc := []struct {
			name   string
			status int
			code   int
			want   Kind
		}{
			{name: "expired token", status: http.StatusBadRequest, code: 190, want: KindManualRequired},
			{name: "missing permission", status: http.StatusForbidden, code: 200, want: KindManualRequired},
			{name: "api permission", status: http.StatusBadRequest, code: 10, want: KindManualRequired},
			{name: "invalid parameter", status: http.StatusBadRequest, code: 100, want: KindNonRetryable},
			{name: "throttled", status: http.StatusTooManyRequests, code: 4, want: KindRetryable},
			{name: "unavailable", status: http.StatusInternalServerError, code: 2, want: KindRetryable},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					io.Copy(io.Discard, r.Body)
					graphFailure(w, tt.status, tt.code, "nope")
				}))
				defer server.Close()

				p := NewFacebookPublisher(graphConfig(server.URL), server.Client())
				_, err := p.Publish(ctx, newRequest(nil, models.ScheduleLocal))
				if pe := Classify(err); pe == nil || pe.Kind != tt.want {
					t.Errorf("expected %s, got %v", tt.want, err)
				}
			})
		}
	})
}

// fakeInstagram serves the container flow; statuses are returned in order by the status poll.
type fakeInstagram struct {
	t        *testing.T
	mu       sync.Mutex
	statuses []string
	polls    int
	uploaded int
	created  map[string]string
}

func (f *fakeInstagram) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v21.0/ig1/media", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		f.created = map[string]string{"media_type": r.PostForm.Get("media_type"), "upload_type": r.PostForm.Get("upload_type")}
		f.mu.Unlock()
		io.WriteString(w, `{"id":"cont1"}`)
	})
	mux.HandleFunc("POST /ig-api-upload/v21.0/cont1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "OAuth meta-token" || r.Header.Get("offset") != "0" {
			f.t.Errorf("unexpected upload headers %v", r.Header)
		}
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.uploaded = len(data)
		f.mu.Unlock()
		io.WriteString(w, `{"success":true}`)
	})
	mux.HandleFunc("GET /v21.0/cont1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.statuses[min(f.polls, len(f.statuses)-1)]
		f.polls++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"status_code": status, "status": status})
	})
	mux.HandleFunc("POST /v21.0/ig1/media_publish", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("creation_id") != "cont1" {
			f.t.Errorf("expected creation_id cont1, got %q", r.PostForm.Get("creation_id"))
		}
		io.WriteString(w, `{"id":"media1"}`)
	})
	return httptest.NewServer(mux)
}

func TestInstagramPublisher(t *testing.T) {
	ctx := context.Background()
	media := tu.WriteMedia(t, t.TempDir(), "reel.mp4", 32)
	account := &accounts.Spec{
		Platform: models.Instagram, ID: "brand", Status: accounts.StatusUsable, Credential: "meta-token",
		Config: accounts.InstagramConfig{AccessTokenEnv: "META_TOKEN", IGUserID: "ig1"},
	}
	newRequest := func() *PublishRequest {
		job := models.NewJob(media, "Reel", models.KindShort)
		return &PublishRequest{Job: job, Target: job.AddTarget(models.Instagram, "brand", nil, ""), Account: account}
	}

	t.Run("publishes after processing finishes", func(t *testing.T) {
		fake := &fakeInstagram{t: t, statuses: []string{"IN_PROGRESS", "IN_PROGRESS", "FINISHED"}}
		server := fake.server()
		defer server.Close()

		p := NewInstagramPublisher(graphConfig(server.URL), server.Client())
		result, err := p.Publish(ctx, newRequest())
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		if result.RemoteID != "media1" {
			t.Errorf("expected media1, got %s", result.RemoteID)
		}
		if fake.created["media_type"] != "REELS" || fake.created["upload_type"] != "resumable" {
			t.Errorf("unexpected container params %v", fake.created)
		}
		if fake.uploaded != 32 {
			t.Errorf("expected 32 bytes uploaded, got %d", fake.uploaded)
		}
		if fake.polls != 3 {
			t.Errorf("expected 3 status polls, got %d", fake.polls)
		}
	})

	t.Run("processing error is terminal", func(t *testing.T) {
		fake := &fakeInstagram{t: t, statuses: []string{"ERROR"}}
		server := fake.server()
		defer server.Close()

		_, err := NewInstagramPublisher(graphConfig(server.URL), server.Client()).Publish(ctx, newRequest())
		if pe := Classify(err); pe == nil || pe.Kind != KindNonRetryable {
			t.Errorf("expected non-retryable, got %v", err)
		}
	})

	t.Run("processing timeout is retryable", func(t *testing.T) {
		fake := &fakeInstagram{t: t, statuses: []string{"IN_PROGRESS"}}
		server := fake.server()
		defer server.Close()

		cfg := graphConfig(server.URL)
		cfg.ProcessingTimeout = shared.Duration{Duration: 30 * time.Millisecond}
		_, err := NewInstagramPublisher(cfg, server.Client()).Publish(ctx, newRequest())
		if pe := Classify(err); pe == nil || pe.Kind != KindRetryable {
			t.Errorf("expected retryable, got %v", err)
		}
	})

	t.Run("permission error needs an operator", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			graphFailure(w, http.StatusBadRequest, 10, "Application does not have permission for this action")
		}))
		defer server.Close()

		_, err := NewInstagramPublisher(graphConfig(server.URL), server.Client()).Publish(ctx, newRequest())
		if pe := Classify(err); pe == nil || pe.Kind != KindManualRequired {
			t.Errorf("expected manual required, got %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		p := NewInstagramPublisher(shared.GraphConfig{APIURL: "https://graph.example.com/", APIVersion: "v21.0"}, nil)
		if p.pollInterval != 5*time.Second || p.timeout != 10*time.Minute {
			t.Errorf("unexpected defaults %s/%s", p.pollInterval, p.timeout)
		}
		if p.apiURL != "https://graph.example.com/v21.0" {
			t.Errorf("unexpected api url %s", p.apiURL)
		}
	})
}

func TestCaption(t *testing.T) {
	job := &models.Job{Title: "Title", Description: "Body", Tags: []string{"#one", " two words ", ""}}
	if got := caption(job); got != "Title\n\nBody\n\n#one #twowords" {
		t.Errorf("unexpected caption %q", got)
	}
}

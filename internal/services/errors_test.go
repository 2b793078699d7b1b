package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"testing"

	"golang.org/x/oauth2"

	"github.com/desertthunder/vidpub/internal/shared"
)

type recordingOutcome struct{ called string }

func (r *recordingOutcome) Retryable(*PublishError)      { r.called = "retryable" }
func (r *recordingOutcome) NonRetryable(*PublishError)   { r.called = "non_retryable" }
func (r *recordingOutcome) ManualRequired(*PublishError) { r.called = "manual_required" }

func TestClassifyStatus(t *testing.T) {
	tc := []struct {
		name string
		code int
		body string
		want Kind
	}{
		{name: "rate limited", code: http.StatusTooManyRequests, want: KindRetryable},
		{name: "server error", code: http.StatusInternalServerError, want: KindRetryable},
		{name: "bad gateway", code: http.StatusBadGateway, want: KindRetryable},
		{name: "bad request", code: http.StatusBadRequest, body: `{"error":"invalid title"}`, want: KindNonRetryable},
		{name: "unauthorized", code: http.StatusUnauthorized, body: `{"error":"bad signature"}`, want: KindNonRetryable},
		{name: "forbidden by permission", code: http.StatusForbidden, body: `{"reason":"insufficientPermissions"}`, want: KindManualRequired},
		{name: "unauthorized scope", code: http.StatusUnauthorized, body: `missing scope youtube.upload`, want: KindManualRequired},
		{name: "not found", code: http.StatusNotFound, body: `permission`, want: KindNonRetryable},
		{name: "conflict", code: http.StatusConflict, want: KindNonRetryable},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyStatus(tt.code, []byte(tt.body))
			if pe.Kind != tt.want {
				t.Errorf("ClassifyStatus(%d) = %s, want %s", tt.code, pe.Kind, tt.want)
			}
			if pe.StatusCode != tt.code {
				t.Errorf("expected status %d to be kept, got %d", tt.code, pe.StatusCode)
			}
			if pe.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if Classify(nil) != nil {
			t.Error("expected nil for nil error")
		}
	})

	tc := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "publish error passes through", err: fmt.Errorf("wrapped: %w", ManualRequired("x", nil)), want: KindManualRequired},
		{name: "status error", err: &StatusError{StatusCode: 503}, want: KindRetryable},
		{name: "wrapped status error", err: fmt.Errorf("upload: %w", &StatusError{StatusCode: 400}), want: KindNonRetryable},
		{name: "deadline", err: context.DeadlineExceeded, want: KindRetryable},
		{name: "cancelled", err: context.Canceled, want: KindRetryable},
		{name: "timeout sentinel", err: shared.ErrTimeout, want: KindRetryable},
		{name: "network", err: &net.OpError{Op: "dial", Err: timeoutErr{}}, want: KindRetryable},
		{name: "missing file", err: &fs.PathError{Op: "open", Path: "x.mp4", Err: fs.ErrNotExist}, want: KindNonRetryable},
		{name: "missing credentials", err: fmt.Errorf("%w: no token", shared.ErrMissingCredentials), want: KindManualRequired},
		{name: "revoked grant", err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, want: KindManualRequired},
		{name: "token endpoint down", err: &oauth2.RetrieveError{Response: &http.Response{StatusCode: 500}}, want: KindRetryable},
		{name: "unknown", err: errors.New("boom"), want: KindNonRetryable},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got.Kind != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got.Kind, tt.want)
			}
		})
	}

	t.Run("keeps the cause", func(t *testing.T) {
		cause := &StatusError{StatusCode: 429, Body: []byte("slow down")}
		pe := Classify(cause)
		var se *StatusError
		if !errors.As(pe, &se) || se != cause {
			t.Error("expected the status error to be unwrappable")
		}
	})
}

func TestPublishErrorVisit(t *testing.T) {
	tc := []struct {
		kind Kind
		want string
	}{
		{KindRetryable, "retryable"},
		{KindNonRetryable, "non_retryable"},
		{KindManualRequired, "manual_required"},
		{Kind(42), "non_retryable"},
	}

	for _, tt := range tc {
		t.Run(tt.want, func(t *testing.T) {
			o := &recordingOutcome{}
			(&PublishError{Kind: tt.kind}).Visit(o)
			if o.called != tt.want {
				t.Errorf("expected %s, got %s", tt.want, o.called)
			}
		})
	}

	t.Run("Error", func(t *testing.T) {
		pe := &PublishError{Kind: KindRetryable, Message: "rate limited", StatusCode: 429}
		if got := pe.Error(); got != "retryable (status 429): rate limited" {
			t.Errorf("unexpected message %q", got)
		}
	})
}

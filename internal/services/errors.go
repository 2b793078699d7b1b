package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/desertthunder/vidpub/internal/shared"
)

// Kind is the closed set of dispatch failure classes.
type Kind int

const (
	// KindRetryable failures are rescheduled with backoff.
	KindRetryable Kind = iota + 1
	// KindNonRetryable failures are terminal.
	KindNonRetryable
	// KindManualRequired failures need an operator (credentials, permissions, manual upload).
	KindManualRequired
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindNonRetryable:
		return "non_retryable"
	case KindManualRequired:
		return "manual_required"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// PublishError is the only error shape the scheduler acts on.
type PublishError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Outcome handles each failure class. Implementations must handle all three.
type Outcome interface {
	Retryable(e *PublishError)
	NonRetryable(e *PublishError)
	ManualRequired(e *PublishError)
}

// Visit calls the Outcome method matching e's kind. Unknown kinds are treated as non-retryable.
func (e *PublishError) Visit(o Outcome) {
	switch e.Kind {
	case KindRetryable:
		o.Retryable(e)
	case KindManualRequired:
		o.ManualRequired(e)
	default:
		o.NonRetryable(e)
	}
}

// Retryable wraps err as a retryable failure.
func Retryable(msg string, err error) *PublishError {
	return &PublishError{Kind: KindRetryable, Message: msg, Err: err}
}

// NonRetryable wraps err as a terminal failure.
func NonRetryable(msg string, err error) *PublishError {
	return &PublishError{Kind: KindNonRetryable, Message: msg, Err: err}
}

// ManualRequired wraps err as needing operator action.
func ManualRequired(msg string, err error) *PublishError {
	return &PublishError{Kind: KindManualRequired, Message: msg, Err: err}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, snippet(e.Body))
}

// Classify maps any error into the taxonomy. A nil error yields nil.
func Classify(err error) *PublishError {
	if err == nil {
		return nil
	}

	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}

	var se *StatusError
	if errors.As(err, &se) {
		pe := ClassifyStatus(se.StatusCode, se.Body)
		pe.Err = err
		return pe
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "unauthorized_client" {
			return ManualRequired("authorization revoked or expired; re-run auth", err)
		}
		if re.Response != nil {
			pe := ClassifyStatus(re.Response.StatusCode, re.Body)
			pe.Err = err
			return pe
		}
		return Retryable("token refresh failed", err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, shared.ErrTimeout):
		return Retryable("timed out", err)
	case errors.Is(err, context.Canceled):
		return Retryable("cancelled", err)
	case errors.Is(err, fs.ErrNotExist):
		return NonRetryable("media file not found", err)
	case errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrAuthFailed):
		return ManualRequired(err.Error(), err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return Retryable("network error", err)
	}

	return NonRetryable(err.Error(), err)
}

// ClassifyStatus maps an HTTP status and response body: 429 and 5xx are retryable,
// 400/401/403 are manual when the body describes a permission problem and terminal
// otherwise, and every other status is terminal.
func ClassifyStatus(code int, body []byte) *PublishError {
	msg := snippet(body)
	if msg == "" {
		msg = http.StatusText(code)
	}

	pe := &PublishError{StatusCode: code, Message: msg}
	switch {
	case code == http.StatusTooManyRequests, code >= 500:
		pe.Kind = KindRetryable
	case code == http.StatusBadRequest, code == http.StatusUnauthorized, code == http.StatusForbidden:
		pe.Kind = KindNonRetryable
		if permissionShaped(body) {
			pe.Kind = KindManualRequired
		}
	default:
		pe.Kind = KindNonRetryable
	}
	return pe
}

var permissionMarkers = []string{
	"permission",
	"insufficient",
	"scope",
	"invalid_grant",
	"access token",
	"access_token_invalid",
	"not authorized",
}

func permissionShaped(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, m := range permissionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

package repositories

import "time"

// TargetUpdateOption sets one optional column in [Store.UpdateTargetState].
// Columns without an option keep their stored value.
type TargetUpdateOption func(*targetUpdate)

type targetUpdate struct {
	resultID   *string
	lastError  *string
	retryCount *int
	nextRetry  **time.Time
}

// WithResultID records the platform-assigned identifier.
func WithResultID(id string) TargetUpdateOption {
	return func(u *targetUpdate) { u.resultID = &id }
}

// WithLastError records a human-readable failure; empty clears it.
func WithLastError(msg string) TargetUpdateOption {
	return func(u *targetUpdate) { u.lastError = &msg }
}

// WithRetryCount sets the retry counter.
func WithRetryCount(n int) TargetUpdateOption {
	return func(u *targetUpdate) { u.retryCount = &n }
}

// WithNextRetryAt schedules the next attempt; nil clears it.
func WithNextRetryAt(t *time.Time) TargetUpdateOption {
	return func(u *targetUpdate) { u.nextRetry = &t }
}

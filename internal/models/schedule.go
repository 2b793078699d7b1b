package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrInvalidJob       = errors.New("invalid job")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrNaiveSchedule    = errors.New("schedule has no timezone offset")
	naiveScheduleLayout = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
)

// ParseSchedule parses an RFC 3339 instant and normalizes it to UTC.
//
// Values without an explicit offset are rejected with [ErrNaiveSchedule] rather than
// guessed in a local zone.
func ParseSchedule(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range naiveScheduleLayout {
		if _, err := time.Parse(layout, s); err == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrNaiveSchedule, s)
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/vidpub/internal/shared"
)

// unitSeparator keeps field boundaries unambiguous inside the hashed key.
const unitSeparator = "\x1f"

// Fingerprint derives the dedup key of a target from its resolved file path, platform,
// account, schedule and title. Identical inputs always hash identically.
func Fingerprint(path string, platform Platform, account string, scheduledAt *time.Time, title string) string {
	schedule := ""
	if scheduledAt != nil {
		schedule = scheduledAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
	}

	key := strings.Join([]string{resolvePath(path), string(platform), account, schedule, title}, unitSeparator)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func resolvePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func newID() string {
	return shared.GenerateID()
}

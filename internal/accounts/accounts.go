// Package accounts loads and validates the per-platform publishing accounts.
//
// Accounts are declared in a TOML or YAML file keyed by platform and account ID. Every
// account is validated locally, without network calls, into one of four statuses so an
// operator can see what will and will not publish unattended. When no file exists the
// registry falls back to a single implicit YouTube account.
package accounts

import (
	"fmt"
	"slices"

	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/shared"
)

// Status is the outcome of validating one account.
type Status string

const (
	StatusUsable            Status = "usable"
	StatusInvalidConfig     Status = "invalid_config"
	StatusMissingCredential Status = "missing_credential"
	StatusManualRequired    Status = "manual_required"
)

// LegacyAccountID names the implicit account used without an accounts file.
const LegacyAccountID = "default"

// Selection marks an account as a platform default, optionally per content kind.
type Selection struct {
	Default    bool                 `toml:"default" yaml:"default"`
	DefaultFor []models.ContentKind `toml:"default_for" yaml:"default_for"`
}

// YouTubeConfig is an OAuth-authorized channel.
type YouTubeConfig struct {
	Selection       `yaml:",inline"`
	CredentialsFile string `toml:"credentials_file" yaml:"credentials_file"`
	Privacy         string `toml:"privacy" yaml:"privacy"`
	CategoryID      string `toml:"category_id" yaml:"category_id"`
}

// FacebookConfig is a page published to with a page access token.
type FacebookConfig struct {
	Selection      `yaml:",inline"`
	AccessTokenEnv string `toml:"access_token_env" yaml:"access_token_env"`
	PageID         string `toml:"page_id" yaml:"page_id"`
}

// InstagramConfig is a professional account bound to a page; it shares the Graph token.
type InstagramConfig struct {
	Selection      `yaml:",inline"`
	AccessTokenEnv string `toml:"access_token_env" yaml:"access_token_env"`
	IGUserID       string `toml:"ig_user_id" yaml:"ig_user_id"`
}

// TikTok account modes.
const (
	TikTokModeAPI    = "api"
	TikTokModeManual = "manual"
)

// TikTokConfig is either an API-authorized creator or a manual-upload placeholder.
type TikTokConfig struct {
	Selection      `yaml:",inline"`
	Mode           string `toml:"mode" yaml:"mode"`
	AccessTokenEnv string `toml:"access_token_env" yaml:"access_token_env"`
	PrivacyLevel   string `toml:"privacy_level" yaml:"privacy_level"`
}

// Spec is one validated account.
type Spec struct {
	Platform models.Platform
	ID       string
	// Config holds the platform's typed config: YouTubeConfig, FacebookConfig,
	// InstagramConfig or TikTokConfig.
	Config  any
	Status  Status
	Message string
	Selection
	// Credential is the resolved secret: the credentials file path for YouTube, the
	// token value for the others. Empty unless the account validated far enough.
	Credential string
}

// Usable reports whether the account can publish unattended.
func (s *Spec) Usable() bool {
	return s.Status == StatusUsable
}

func (s *Spec) defaultsFor(kind models.ContentKind) bool {
	return slices.Contains(s.DefaultFor, kind)
}

// Registry is an immutable, ordered view of all configured accounts.
type Registry struct {
	path   string
	legacy bool
	specs  map[models.Platform][]*Spec
}

// Path is the accounts file the registry was loaded from.
func (r *Registry) Path() string { return r.path }

// Legacy reports whether no accounts file existed and the implicit account is in use.
func (r *Registry) Legacy() bool { return r.legacy }

// Accounts returns the accounts of platform in file order.
func (r *Registry) Accounts(p models.Platform) []*Spec {
	return r.specs[p]
}

// All returns every account grouped by platform in [models.Platforms] order.
func (r *Registry) All() []*Spec {
	var all []*Spec
	for _, p := range models.Platforms() {
		all = append(all, r.specs[p]...)
	}
	return all
}

// Get looks up an account by platform and ID.
func (r *Registry) Get(p models.Platform, id string) (*Spec, error) {
	for _, s := range r.specs[p] {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", shared.ErrUnknownAccount, p, id)
}

// Default picks the platform's account for kind: an account listing kind in default_for
// wins, then one marked default, then the first configured.
func (r *Registry) Default(p models.Platform, kind models.ContentKind) (*Spec, error) {
	specs := r.specs[p]
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no %s accounts configured", shared.ErrUnknownAccount, p)
	}
	for _, s := range specs {
		if s.defaultsFor(kind) {
			return s, nil
		}
	}
	for _, s := range specs {
		if s.Default {
			return s, nil
		}
	}
	return specs[0], nil
}

// Resolve returns the named account, or the default for kind when id is empty.
func (r *Registry) Resolve(p models.Platform, id string, kind models.ContentKind) (*Spec, error) {
	if id == "" {
		return r.Default(p, kind)
	}
	return r.Get(p, id)
}

// Counts tallies accounts by status.
func (r *Registry) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, s := range r.All() {
		counts[s.Status]++
	}
	return counts
}

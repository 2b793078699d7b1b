package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/desertthunder/vidpub/internal/shared"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// YouTubeScopes are requested by `auth youtube`.
var YouTubeScopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

// Credentials is the per-account YouTube credentials file.
type Credentials struct {
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	TokenURI     string        `json:"token_uri,omitempty"`
	Token        *oauth2.Token `json:"token"`
}

// YouTubeOAuthConfig returns the OAuth client for a YouTube channel.
func YouTubeOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       YouTubeScopes,
		Endpoint:     oauth2.Endpoint{AuthURL: googleAuthURL, TokenURL: googleTokenURL},
	}
}

// LoadCredentials reads a credentials file written by [SaveCredentials].
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMissingCredentials, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: malformed credentials file %s: %v", shared.ErrMissingCredentials, path, err)
	}
	if creds.Token == nil || (creds.Token.AccessToken == "" && creds.Token.RefreshToken == "") {
		return nil, fmt.Errorf("%w: no token in %s", shared.ErrMissingCredentials, path)
	}
	return &creds, nil
}

// SaveCredentials writes creds to path with owner-only permissions.
func SaveCredentials(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp, path)
}

// OAuthConfig rebuilds the client config the token was issued for.
func (c *Credentials) OAuthConfig() *oauth2.Config {
	cfg := YouTubeOAuthConfig(c.ClientID, c.ClientSecret, "")
	if c.TokenURI != "" {
		cfg.Endpoint.TokenURL = c.TokenURI
	}
	return cfg
}

// refreshableTokenSource calls callback whenever the wrapped source hands out a new access token.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.source.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed && s.callback != nil {
		s.callback(token)
	}
	return token, nil
}

// credentialClient returns an HTTP client authorized with the credentials at path. Refreshed
// tokens are written back so the next run does not refresh again.
func credentialClient(ctx context.Context, base *http.Client, path string) (*http.Client, error) {
	creds, err := LoadCredentials(path)
	if err != nil {
		return nil, err
	}

	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	source := &refreshableTokenSource{
		source: creds.OAuthConfig().TokenSource(ctx, creds.Token),
		last:   creds.Token.AccessToken,
		callback: func(token *oauth2.Token) {
			updated := *creds
			updated.Token = token
			_ = SaveCredentials(path, &updated)
		},
	}
	return oauth2.NewClient(ctx, source), nil
}

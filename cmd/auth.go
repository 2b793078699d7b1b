package main

import (
	"context"
	"fmt"
	"net"

	"github.com/desertthunder/vidpub/internal/accounts"
	"github.com/desertthunder/vidpub/internal/models"
	"github.com/desertthunder/vidpub/internal/server"
	"github.com/desertthunder/vidpub/internal/services"
	"github.com/desertthunder/vidpub/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthYouTube runs the consent flow for a YouTube account and writes its credentials file.
func (r *Runner) AuthYouTube(ctx context.Context, cmd *cli.Command) error {
	accountID := cmd.String("account")

	reg, err := r.loadAccounts()
	if err != nil {
		return err
	}
	spec, err := reg.Get(models.YouTube, accountID)
	if err != nil {
		return err
	}
	cfg, ok := spec.Config.(accounts.YouTubeConfig)
	if !ok || cfg.CredentialsFile == "" {
		return fmt.Errorf("%w: youtube.%s has no credentials_file", shared.ErrInvalidConfig, accountID)
	}

	yt := r.config.Platforms.YouTube
	if yt.ClientID == "" || yt.ClientSecret == "" || yt.ClientID == "your_google_client_id" {
		return fmt.Errorf("%w: set platforms.youtube.client_id and client_secret", shared.ErrMissingConfig)
	}

	oauthCfg := services.YouTubeOAuthConfig(yt.ClientID, yt.ClientSecret, "")
	if yt.AuthURL != "" {
		oauthCfg.Endpoint.AuthURL = yt.AuthURL
	}
	if yt.TokenURL != "" {
		oauthCfg.Endpoint.TokenURL = yt.TokenURL
	}

	handler := server.NewOAuthHandler(oauthCfg)
	srv := server.NewCallbackServer(r.config.Server.Addr(), handler, shared.WithLogger(r.logger, "component", "oauth"))
	if err := srv.Start(); err != nil {
		return err
	}

	_, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		return fmt.Errorf("failed to parse callback address: %w", err)
	}
	oauthCfg.RedirectURL = fmt.Sprintf("http://%s/callback", net.JoinHostPort(r.config.Server.Host, port))

	authURL := handler.AuthURL()
	r.writePlain("Authorizing YouTube account %q\n", accountID)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n\n%s\n\n", authURL)
	} else if err := r.openBrowser(ctx, authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
		r.writePlain("Open this URL in your browser:\n\n%s\n\n", authURL)
	}

	r.logger.Info("waiting for authorization", "timeout", r.authTimeout)
	token, err := srv.Wait(ctx, r.authTimeout)
	if err != nil {
		return err
	}

	path := shared.ExpandPath(cfg.CredentialsFile)
	creds := &services.Credentials{
		ClientID:     yt.ClientID,
		ClientSecret: yt.ClientSecret,
		TokenURI:     oauthCfg.Endpoint.TokenURL,
		Token:        token,
	}
	if err := services.SaveCredentials(path, creds); err != nil {
		return err
	}

	r.logger.Info("credentials saved", "account", accountID, "path", path)
	return r.writePlain("✓ YouTube account %q authorized\nCredentials saved to: %s\n", accountID, path)
}

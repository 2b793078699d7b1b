package accounts

import (
	"fmt"

	"github.com/desertthunder/vidpub/internal/shared"
)

// validate sets spec's Status, Message and Credential. It never touches the network.
func validate(spec *Spec, opts Options) {
	switch cfg := spec.Config.(type) {
	case YouTubeConfig:
		validateYouTube(spec, cfg)
	case FacebookConfig:
		validateToken(spec, opts, cfg.AccessTokenEnv, "page_id", cfg.PageID)
	case InstagramConfig:
		validateToken(spec, opts, cfg.AccessTokenEnv, "ig_user_id", cfg.IGUserID)
	case TikTokConfig:
		validateTikTok(spec, opts, cfg)
	default:
		spec.set(StatusInvalidConfig, fmt.Sprintf("unsupported platform %q", spec.Platform))
	}
}

func validateYouTube(spec *Spec, cfg YouTubeConfig) {
	if cfg.CredentialsFile == "" {
		spec.set(StatusInvalidConfig, "credentials_file is required")
		return
	}

	path := shared.ExpandPath(cfg.CredentialsFile)
	if !shared.FileExists(path) {
		spec.set(StatusMissingCredential, fmt.Sprintf("credentials file %s not found; run `vidpub auth youtube --account %s`", path, spec.ID))
		return
	}

	spec.Credential = path
	spec.set(StatusUsable, "credentials file "+path)
}

func validateToken(spec *Spec, opts Options, env, idField, id string) {
	if env == "" {
		spec.set(StatusInvalidConfig, "access_token_env is required")
		return
	}
	if id == "" {
		spec.set(StatusInvalidConfig, idField+" is required")
		return
	}

	token := opts.getenv(env)
	if token == "" {
		spec.set(StatusMissingCredential, fmt.Sprintf("environment variable %s is empty", env))
		return
	}

	spec.Credential = token
	spec.set(StatusUsable, fmt.Sprintf("token from %s", env))
}

func validateTikTok(spec *Spec, opts Options, cfg TikTokConfig) {
	switch cfg.Mode {
	case TikTokModeManual:
		spec.set(StatusManualRequired, "manual mode; upload from the TikTok app")
	case TikTokModeAPI:
		if cfg.AccessTokenEnv == "" {
			spec.set(StatusInvalidConfig, "access_token_env is required in api mode")
			return
		}
		token := opts.getenv(cfg.AccessTokenEnv)
		if token == "" {
			spec.set(StatusMissingCredential, fmt.Sprintf("environment variable %s is empty", cfg.AccessTokenEnv))
			return
		}
		spec.Credential = token
		spec.set(StatusUsable, fmt.Sprintf("token from %s", cfg.AccessTokenEnv))
	case "":
		spec.set(StatusInvalidConfig, "mode is required (api or manual)")
	default:
		spec.set(StatusInvalidConfig, fmt.Sprintf("unknown mode %q (api or manual)", cfg.Mode))
	}
}

func (s *Spec) set(status Status, msg string) {
	s.Status, s.Message = status, msg
}

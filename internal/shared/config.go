package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Accounts  AccountsConfig  `toml:"accounts"`
	Platforms PlatformsConfig `toml:"platforms"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path        string   `toml:"path"`
	BusyTimeout Duration `toml:"busy_timeout"`
}

// LogConfig controls log verbosity and the dashboard log file.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// ServerConfig contains the local OAuth callback server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SchedulerConfig tunes the upload scheduler.
type SchedulerConfig struct {
	PollInterval  Duration   `toml:"poll_interval"`
	MaxConcurrent int        `toml:"max_concurrent"`
	Backoff       []Duration `toml:"backoff"`
}

// BackoffSchedule converts the configured retry delays.
func (s SchedulerConfig) BackoffSchedule() []time.Duration {
	out := make([]time.Duration, 0, len(s.Backoff))
	for _, d := range s.Backoff {
		out = append(out, d.Duration)
	}
	return out
}

// AccountsConfig locates the accounts file.
type AccountsConfig struct {
	Path                  string `toml:"path"`
	LegacyCredentialsFile string `toml:"legacy_credentials_file"`
	Watch                 bool   `toml:"watch"`
}

// PlatformsConfig holds endpoint and throughput settings per remote platform.
type PlatformsConfig struct {
	YouTube YouTubeConfig `toml:"youtube"`
	Graph   GraphConfig   `toml:"graph"`
	TikTok  TikTokConfig  `toml:"tiktok"`
}

// YouTubeConfig contains YouTube Data API endpoints and the OAuth client used by `auth youtube`.
type YouTubeConfig struct {
	APIURL            string  `toml:"api_url"`
	UploadURL         string  `toml:"upload_url"`
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	AuthURL           string  `toml:"auth_url"`
	TokenURL          string  `toml:"token_url"`
	ChunkSize         int64   `toml:"chunk_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// GraphConfig configures the Meta Graph API shared by Facebook and Instagram.
type GraphConfig struct {
	APIURL            string   `toml:"api_url"`
	APIVersion        string   `toml:"api_version"`
	UploadURL         string   `toml:"upload_url"`
	PollInterval      Duration `toml:"poll_interval"`
	ProcessingTimeout Duration `toml:"processing_timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// TikTokConfig configures the TikTok Content Posting API.
type TikTokConfig struct {
	APIURL            string  `toml:"api_url"`
	ChunkSize         int64   `toml:"chunk_size"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Duration is a [time.Duration] that decodes from strings like "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads a TOML configuration file. Keys missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("%w: scheduler.max_concurrent must be at least 1", ErrInvalidConfig)
	}
	if c.Scheduler.PollInterval.Duration <= 0 {
		return fmt.Errorf("%w: scheduler.poll_interval must be positive", ErrInvalidConfig)
	}
	for i, d := range c.Scheduler.Backoff {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: scheduler.backoff[%d] must be positive", ErrInvalidConfig, i)
		}
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile writes the embedded example config to path, refusing to overwrite.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./vidpub.db" {
			t.Errorf("expected database path ./vidpub.db, got %s", config.Database.Path)
		}

		if config.Scheduler.MaxConcurrent != 2 {
			t.Errorf("expected max_concurrent 2, got %d", config.Scheduler.MaxConcurrent)
		}

		want := []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}
		got := config.Scheduler.BackoffSchedule()
		if len(got) != len(want) {
			t.Fatalf("expected %d backoff steps, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("backoff[%d] = %v, want %v", i, got[i], want[i])
			}
		}

		if config.Platforms.Graph.ProcessingTimeout.Duration != 10*time.Minute {
			t.Errorf("expected graph processing timeout 10m, got %v", config.Platforms.Graph.ProcessingTimeout)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[scheduler]
poll_interval = "250ms"
max_concurrent = 4
backoff = ["10s", "20s"]

[platforms.youtube]
chunk_size = 1024
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Scheduler.PollInterval.Duration != 250*time.Millisecond {
			t.Errorf("expected poll interval 250ms, got %v", config.Scheduler.PollInterval)
		}
		if got := config.Scheduler.BackoffSchedule(); len(got) != 2 || got[1] != 20*time.Second {
			t.Errorf("unexpected backoff schedule %v", got)
		}
		if config.Platforms.YouTube.ChunkSize != 1024 {
			t.Errorf("expected chunk size 1024, got %d", config.Platforms.YouTube.ChunkSize)
		}
		if config.Platforms.Graph.APIVersion != "v21.0" {
			t.Errorf("unset keys should keep defaults, got graph version %q", config.Platforms.Graph.APIVersion)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{"bad duration", "[scheduler]\npoll_interval = \"soon\"\n"},
			{"zero workers", "[scheduler]\nmax_concurrent = 0\n"},
			{"negative backoff", "[scheduler]\nbackoff = [\"-1m\"]\n"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(configPath, []byte(tt.body), 0644); err != nil {
					t.Fatalf("failed to write test config: %v", err)
				}
				if _, err := LoadConfig(configPath); err == nil {
					t.Fatal("expected error")
				} else if tt.name != "bad duration" && !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})
}

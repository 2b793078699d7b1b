package shared

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "home prefix", in: "~/tokens/a.json", want: filepath.Join(home, "tokens/a.json")},
		{name: "bare tilde", in: "~", want: home},
		{name: "absolute", in: "/etc/vidpub.toml", want: "/etc/vidpub.toml"},
		{name: "tilde in name", in: "a~b", want: "a~b"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandPath(tt.in); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	t.Run("SetLogLevel", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf)

		if err := SetLogLevel(l, "warn"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if l.GetLevel() != log.WarnLevel {
			t.Errorf("expected warn level, got %v", l.GetLevel())
		}

		l.Info("hidden")
		if strings.Contains(buf.String(), "hidden") {
			t.Error("info message should be filtered at warn level")
		}

		if err := SetLogLevel(l, "loud"); err == nil {
			t.Error("expected error for unknown level")
		}
	})

	t.Run("NewFileLogger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "vidpub.log")
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		l.Info("written to file")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "written to file") {
			t.Errorf("log file missing message: %s", data)
		}
	})
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(file) {
		t.Error("expected file to exist")
	}
	if FileExists(dir) {
		t.Error("directories are not files")
	}
	if FileExists(filepath.Join(dir, "missing.mp4")) {
		t.Error("missing file reported as existing")
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique IDs")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string, got %q", a)
	}
}

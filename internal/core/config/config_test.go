package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reshape.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("version = %d, want 1", cfg.Version)
	}
	if cfg.Project.Root != "." {
		t.Errorf("root = %q, want .", cfg.Project.Root)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", cfg.Watch.Debounce)
	}
	if cfg.Watch.RateLimit != 2 {
		t.Errorf("rate limit = %v, want 2", cfg.Watch.RateLimit)
	}
	if cfg.History.Path != "reshape-history.db" {
		t.Errorf("history path = %q", cfg.History.Path)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults = %q/%q", cfg.Log.Level, cfg.Log.Format)
	}

	found := false
	for _, d := range cfg.Exclude.Dirs {
		if d == "__pycache__" {
			found = true
		}
	}
	if !found {
		t.Errorf("default exclude dirs missing __pycache__: %v", cfg.Exclude.Dirs)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
version = 1

[project]
root = "/srv/code"

[exclude]
dirs = ["vendor"]
files = ["*_pb2.py"]

[analysis]
workers = 4

[watch]
enabled = true
debounce = "250ms"
rate_limit = 1.5

[history]
enabled = true
path = "audit.db"

[observability]
metrics_addr = ":9091"
service_name = "reshape-ci"

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Project.Root != "/srv/code" {
		t.Errorf("root = %q", cfg.Project.Root)
	}
	if len(cfg.Exclude.Dirs) != 1 || cfg.Exclude.Dirs[0] != "vendor" {
		t.Errorf("exclude dirs = %v", cfg.Exclude.Dirs)
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("workers = %d", cfg.Analysis.Workers)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce != 250*time.Millisecond || cfg.Watch.RateLimit != 1.5 {
		t.Errorf("watch = %+v", cfg.Watch)
	}
	if !cfg.History.Enabled || cfg.History.Path != "audit.db" {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Observability.MetricsAddr != ":9091" || cfg.Observability.ServiceName != "reshape-ci" {
		t.Errorf("observability = %+v", cfg.Observability)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_RejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad version", "version = 2\n", "unsupported config version"},
		{"bad log level", "[log]\nlevel = \"loud\"\n", "unknown log level"},
		{"bad log format", "[log]\nformat = \"xml\"\n", "unknown log format"},
		{"bad glob", "[exclude]\ndirs = [\"[\"]\n", "invalid exclude pattern"},
		{"not toml", "version = = 1\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML config file, fills defaults and validates it.
// A missing path yields the defaults unchanged.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyDefaults(&cfg)
				return &cfg, validate(&cfg)
			}
			return nil, err
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Project.Root) == "" {
		cfg.Project.Root = "."
	}

	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{
			".git", ".hg", ".tox", ".venv", "venv",
			"__pycache__", "node_modules", "build", "dist",
		}
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.RateLimit <= 0 {
		cfg.Watch.RateLimit = 2
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "reshape-history.db"
	}
	if cfg.History.BusyTimeout <= 0 {
		cfg.History.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "reshape"
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "text"
	}
}

func validate(cfg *Config) error {
	if err := validateVersion(cfg); err != nil {
		return err
	}
	if err := validateProject(cfg); err != nil {
		return err
	}
	if err := validateExclude(cfg); err != nil {
		return err
	}
	if err := validateLog(cfg); err != nil {
		return err
	}
	return nil
}

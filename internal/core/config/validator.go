package config

import (
	"fmt"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	return nil
}

func validateProject(cfg *Config) error {
	if cfg.Project.Root == "" {
		return fmt.Errorf("project.root must not be empty")
	}
	return nil
}

func validateExclude(cfg *Config) error {
	for _, pattern := range append(append([]string{}, cfg.Exclude.Dirs...), cfg.Exclude.Files...) {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func validateLog(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return nil
}

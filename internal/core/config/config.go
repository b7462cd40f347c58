package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Project       Project       `toml:"project"`
	Exclude       Exclude       `toml:"exclude"`
	Analysis      Analysis      `toml:"analysis"`
	Watch         Watch         `toml:"watch"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Log           Log           `toml:"log"`
}

type Project struct {
	Root string `toml:"root"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Analysis struct {
	// Workers bounds the per-file analysis pool; 0 means GOMAXPROCS.
	Workers int `toml:"workers"`
}

type Watch struct {
	Enabled   bool          `toml:"enabled"`
	Debounce  time.Duration `toml:"debounce"`
	RateLimit float64       `toml:"rate_limit"` // re-analyses per second
}

type History struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

type Log struct {
	Level  string `toml:"level"` // debug, info, warn, error
	Format string `toml:"format"`
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"reshape/internal/core/config"
	"reshape/internal/shared/observability"
)

var (
	configPath = flag.String("config", "./reshape.toml", "Path to config file")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

const usageText = `usage: reshape [flags] <command> [args]

commands:
  analyze              build the project model and report unresolved references
  plan <kind> [-p k=v] validate a refactoring and print its rewrite plan
  kinds                list the available refactoring kinds
  watch                re-run analysis when watched files change
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Printf("reshape v%s\n", VERSION)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	if cfg.Observability.OTLPEndpoint != "" {
		shutdown, err := observability.SetupTracing(ctx, cfg.Observability.OTLPEndpoint, cfg.Observability.ServiceName)
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("trace shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Observability.MetricsAddr != "" {
		srv := observability.NewServer(cfg.Observability.MetricsAddr)
		if err := srv.Start(ctx); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer srv.Stop(ctx)
	}

	app, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.Log.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

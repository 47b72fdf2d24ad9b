package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Options are the command-line choices passed in by cmd/acdisplay.
type Options struct {
	ConfigPath string
	Simulate   bool
}

// Run is the CLI entrypoint used by cmd/acdisplay.
// It returns an error instead of calling os.Exit so defers still run.
func Run(opts Options) error {
	path := opts.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	if opts.Simulate {
		cfg.Source = SourceSimulator
	}

	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}

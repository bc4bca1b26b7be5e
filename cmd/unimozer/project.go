package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"unimozer/internal/config"
	"unimozer/internal/session"
	"unimozer/internal/trace"
)

// projectDir returns the first positional argument or ".".
func projectDir(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}

// loadConfig honours --config, otherwise searches upward from dir.
func loadConfig(cmd *cobra.Command, dir string) (*config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(dir)
}

// newSession builds a session for the project at dir; opts may preset
// callbacks.
func newSession(cmd *cobra.Command, dir string, opts session.Options) (*session.Session, error) {
	cfg, err := loadConfig(cmd, dir)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	opts.Logger = slog.Default()
	opts.Tracer = trace.FromContext(cmd.Context())
	return session.New(opts)
}

// Package app assembles the resolution adapter from configuration: concrete
// stores, caches, oracle collaborators, blob storage, services, and pipelines
// are wired in Wire, and the operating mode decides which of them run.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/outcomebridge/ooadapter/internal/config"
)

// App owns the configuration, logger, and the teardown hooks accumulated
// while wiring. It runs exactly one mode per process.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App for the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, dispatches to the configured mode, and blocks
// until the context is cancelled or the mode fails. Teardown happens in
// Close, not here, so a caller can inspect state after a failed run.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	modes := map[string]func(context.Context, *Dependencies) error{
		"serve":      a.ServeMode,
		"worker":     a.WorkerMode,
		"standalone": a.StandaloneMode,
		"full":       a.FullMode,
	}
	mode, ok := modes[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	return mode(ctx, deps)
}

// Close runs the teardown hooks in reverse registration order. Calling it
// again is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/outcomebridge/ooadapter/internal/service"
)

// Orchestrator manages the background goroutines: the resolution sweeper, the
// dispute listener, and cold-storage archival. Any component may be nil, in
// which case it is skipped; this lets run modes pick the subset they need.
type Orchestrator struct {
	resolver    *service.ResolverWorker
	disputes    *DisputeListener
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator coordinating the given
// background components.
func NewOrchestrator(
	resolver *service.ResolverWorker,
	disputes *DisputeListener,
	archiver *Archiver,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		resolver:    resolver,
		disputes:    disputes,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger,
	}
}

// Run starts the configured components as concurrent goroutines using an
// errgroup. Each goroutine respects ctx cancellation. If any goroutine
// returns a non-context error, the errgroup cancels the shared context and
// Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("resolver", o.resolver != nil),
		slog.Bool("dispute_listener", o.disputes != nil),
		slog.Bool("archiver", o.archiver != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	// A nil return from a component (a cleanly closed feed, ctx
	// cancellation) must not cancel its siblings.
	if o.resolver != nil {
		g.Go(func() error {
			o.logger.Info("starting resolution sweeper")
			if err := o.resolver.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("resolution sweeper: %w", err)
			}
			return nil
		})
	}

	if o.disputes != nil {
		g.Go(func() error {
			o.logger.Info("starting dispute listener")
			if err := o.disputes.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("dispute listener: %w", err)
			}
			return nil
		})
	}

	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			o.logger.Info("starting archiver cron", slog.String("cron", o.archiveCron))
			if err := o.archiver.RunCron(ctx, o.archiveCron); err != nil && ctx.Err() == nil {
				return fmt.Errorf("archiver: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

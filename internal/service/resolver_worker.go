package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// ResolverWorker periodically scans unresolved questions and resolves every
// one the oracle has a price for. It is the automation that keeps questions
// flowing without manual resolve calls.
type ResolverWorker struct {
	questions *QuestionService
	self      domain.QuestionStore // direct store access for the scan
	pollDur   time.Duration
	batchSize int
	logger    *slog.Logger
}

// ResolverConfig tunes the worker's scan loop.
type ResolverConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// NewResolverWorker creates a ResolverWorker. pollInterval defaults to one
// minute and batchSize to 100.
func NewResolverWorker(
	questions *QuestionService,
	store domain.QuestionStore,
	cfg ResolverConfig,
	logger *slog.Logger,
) *ResolverWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ResolverWorker{
		questions: questions,
		self:      store,
		pollDur:   cfg.PollInterval,
		batchSize: cfg.BatchSize,
		logger:    logger.With(slog.String("component", "resolver_worker")),
	}
}

// Run scans for resolvable questions until the context is cancelled. Call in
// a goroutine or errgroup.
func (w *ResolverWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.ErrorContext(ctx, "resolver sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// sweep resolves every currently resolvable question once.
func (w *ResolverWorker) sweep(ctx context.Context) error {
	offset := 0
	resolved, reset := 0, 0

	for {
		batch, err := w.self.ListUnresolved(ctx, domain.ListOpts{Limit: w.batchSize, Offset: offset})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, q := range batch {
			if q.Paused {
				continue
			}

			ready, err := w.questions.ReadyToResolve(ctx, q.QuestionID)
			if err != nil {
				w.logger.DebugContext(ctx, "readiness check failed",
					slog.String("question_id", q.QuestionID.Hex()),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !ready {
				continue
			}

			res, err := w.questions.Resolve(ctx, q.Creator, q.QuestionID)
			switch {
			case err == nil:
				if res.Reset {
					reset++
				} else {
					resolved++
				}
			case errors.Is(err, domain.ErrLockHeld),
				errors.Is(err, domain.ErrReentrancy),
				errors.Is(err, domain.ErrPaused),
				errors.Is(err, domain.ErrAlreadyResolved),
				errors.Is(err, domain.ErrAlreadySettled):
				// Another actor got there first or the question became
				// ineligible mid-sweep; pick it up next round.
			default:
				w.logger.ErrorContext(ctx, "resolve failed",
					slog.String("question_id", q.QuestionID.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}

		if len(batch) < w.batchSize {
			break
		}
		offset += w.batchSize
	}

	if resolved > 0 || reset > 0 {
		w.logger.InfoContext(ctx, "resolver sweep finished",
			slog.Int("resolved", resolved),
			slog.Int("reset", reset),
		)
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/outcomebridge/ooadapter/internal/adapter"
	"github.com/outcomebridge/ooadapter/internal/pipeline"
	"github.com/outcomebridge/ooadapter/internal/server"
	"github.com/outcomebridge/ooadapter/internal/server/handler"
	"github.com/outcomebridge/ooadapter/internal/server/ws"
	"github.com/outcomebridge/ooadapter/internal/service"
)

// ServeMode runs the HTTP/WebSocket API without background workers.
// Resolution sweeps and dispute handling are left to a separate worker
// process sharing the same Postgres and Redis.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, true, false)
}

// WorkerMode runs the background components only: the resolution sweeper,
// the dispute listener, and the archive job.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, false, true)
}

// StandaloneMode runs the API and workers against in-process stand-ins for
// the chain, store, and cache. Useful for local development and integration
// testing without external services.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, true, true)
}

// FullMode runs the API and all background components in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, true, true)
}

func (a *App) runMode(ctx context.Context, deps *Dependencies, withServer, withWorkers bool) error {
	questions, err := a.buildQuestionService(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if withServer && a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now(),
		})
		srv := server.NewServer(
			server.Config{
				Port:        a.cfg.Server.Port,
				CORSOrigins: a.cfg.Server.CORSOrigins,
				APIKey:      a.cfg.Server.APIKey,
				RateLimit:   a.cfg.Server.RateLimit,
				RateWindow:  a.cfg.Server.RateWindow.Duration,
			},
			server.Handlers{
				Health:    handler.NewHealthHandler(deps.Health, a.logger),
				Questions: handler.NewQuestionHandler(questions, a.logger),
				Admin:     handler.NewAdminHandler(questions, a.logger),
			},
			hub,
			deps.Limiter,
			a.logger,
		)

		g.Go(func() error { return hub.Run(ctx) })
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if withWorkers {
		orch := pipeline.NewOrchestrator(
			a.buildResolver(deps, questions),
			a.buildDisputeListener(ctx, deps, questions),
			a.buildArchiver(deps),
			a.archiveCron(),
			a.logger,
		)
		g.Go(func() error { return orch.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildQuestionService assembles the adapter state machine and its service
// wrapper, then grants admin rights to the configured addresses.
func (a *App) buildQuestionService(ctx context.Context, deps *Dependencies) (*service.QuestionService, error) {
	adp := adapter.New(
		adapter.Config{
			Address:               deps.AdapterAddress,
			OracleAddress:         deps.OracleAddress,
			EmergencySafetyPeriod: a.cfg.Adapter.EmergencySafetyPeriod.Duration,
			MaxAncillaryData:      a.cfg.Adapter.MaxAncillaryData,
		},
		adapter.Deps{
			Store:      deps.Store,
			Oracle:     deps.Oracle,
			Settlement: deps.Settlement,
			Tokens:     deps.Tokens,
			AllowList:  deps.AllowList,
		},
		deps.Deployer,
		a.logger,
	)

	questions := service.NewQuestionService(
		adp,
		deps.Store,
		deps.Cache,
		deps.Locks,
		deps.Audit,
		deps.Bus,
		deps.Notifier,
		nil,
		a.logger,
	)

	for _, admin := range a.cfg.Adapter.Admins {
		addr := common.HexToAddress(admin)
		if err := questions.Rely(ctx, deps.Deployer, addr); err != nil {
			return nil, fmt.Errorf("app: grant admin %s: %w", addr.Hex(), err)
		}
	}
	return questions, nil
}

func (a *App) buildResolver(deps *Dependencies, questions *service.QuestionService) *service.ResolverWorker {
	if !a.cfg.Worker.Enabled {
		return nil
	}
	return service.NewResolverWorker(questions, deps.Store, service.ResolverConfig{
		PollInterval: a.cfg.Worker.PollInterval.Duration,
		BatchSize:    a.cfg.Worker.BatchSize,
	}, a.logger)
}

// buildDisputeListener picks the dispute feed for the current deployment:
// the in-process oracle in standalone mode, a chain log subscription
// otherwise. A failed chain subscription logs a warning and disables the
// listener rather than aborting startup; most RPC endpoints only support
// subscriptions over websocket.
func (a *App) buildDisputeListener(ctx context.Context, deps *Dependencies, questions *service.QuestionService) *pipeline.DisputeListener {
	switch {
	case deps.LocalOracle != nil:
		feed := pipeline.BridgeLocalDisputes(deps.OracleAddress, deps.LocalOracle.Disputes())
		return pipeline.NewDisputeListener(feed, questions, a.logger)
	case deps.OracleWatcher != nil:
		events, err := deps.OracleWatcher.WatchDisputes(ctx, deps.AdapterAddress)
		if err != nil {
			a.logger.WarnContext(ctx, "dispute subscription unavailable, listener disabled",
				slog.String("error", err.Error()),
			)
			return nil
		}
		feed := pipeline.BridgeOracleDisputes(deps.OracleAddress, events)
		return pipeline.NewDisputeListener(feed, questions, a.logger)
	default:
		return nil
	}
}

func (a *App) buildArchiver(deps *Dependencies) *pipeline.Archiver {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return nil
	}
	return pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
}

func (a *App) archiveCron() string {
	if !a.cfg.Archive.Enabled {
		return ""
	}
	return a.cfg.Archive.Cron
}

package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omenmarkets/core/internal/audit"
	"github.com/omenmarkets/core/internal/pipeline"
	"github.com/omenmarkets/core/internal/server"
	"github.com/omenmarkets/core/internal/server/handler"
	"github.com/omenmarkets/core/internal/server/ws"
	"github.com/omenmarkets/core/internal/service"
)

// services bundles the service layer built on top of the wired dependencies.
type services struct {
	markets    *service.MarketService
	trades     *service.TradeService
	settlement *service.SettlementService
	recorder   *audit.Recorder
}

// buildServices constructs the service layer from configuration and wired
// dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	recorder := audit.NewRecorder(deps.RiskRecordStore, deps.SignalBus, a.logger)
	riskSvc := service.NewRiskService(deps.TradeStore, recorder, a.cfg.Risk.Enforcement(), a.logger)

	tradeSvc := service.NewTradeService(
		deps.MarketStore,
		deps.TradeStore,
		deps.PositionStore,
		deps.Tx,
		deps.LockManager,
		deps.PriceCache,
		deps.SignalBus,
		riskSvc,
		a.cfg.Risk.Limits(),
		a.logger,
	)
	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.PriceCache, deps.SignalBus,
		a.cfg.Market.Defaults(), a.logger,
	)
	settlementSvc := service.NewSettlementService(
		deps.MarketStore, deps.PositionStore, deps.Tx, deps.LockManager, a.logger,
	)

	return &services{
		markets:    marketSvc,
		trades:     tradeSvc,
		settlement: settlementSvc,
		recorder:   recorder,
	}
}

// ServeMode runs the trading API: HTTP server, WebSocket hub, and the audit
// recorder's retry loop. No archival happens in this mode.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	g.Go(func() error {
		return svcs.recorder.Run(ctx)
	})

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but serve mode always starts the HTTP server")
	}
	a.startHTTPServer(ctx, g, deps, svcs, nil)

	return g.Wait()
}

// ArchiveMode runs only the cold-storage archive pipeline on its cron
// schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archive.enabled must be true")
	}

	g, ctx := errgroup.WithContext(ctx)

	arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		return arch.RunCron(ctx, a.cfg.Archive.Cron, nil)
	})

	return g.Wait()
}

// FullMode runs everything: the trading API plus the archive pipeline. The
// pipeline also listens on a trigger channel so POST /api/archive/trigger can
// request an immediate run.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	g.Go(func() error {
		return svcs.recorder.Run(ctx)
	})

	var trigger chan struct{}
	if deps.Archiver != nil {
		trigger = make(chan struct{}, 1)
		arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return arch.RunCron(ctx, a.cfg.Archive.Cron, trigger)
		})
	} else {
		a.logger.InfoContext(ctx, "archive.enabled is false, skipping archive pipeline")
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs, trigger)
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled. trigger is optional; when non-nil, POST /api/archive/trigger
// requests one archive run.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
	trigger chan<- struct{},
) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	probes := map[string]handler.Pinger{
		"postgres": deps.PG,
		"redis":    deps.Redis,
	}
	if deps.S3 != nil {
		probes["s3"] = deps.S3
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(probes, a.logger),
		Markets: handler.NewMarketHandler(svcs.markets, a.logger),
		Trades:  handler.NewTradeHandler(svcs.trades, a.logger),
		Claims:  handler.NewClaimHandler(svcs.settlement, a.logger),
		Risk:    handler.NewRiskHandler(deps.RiskRecordStore, a.logger),
		Archive: handler.NewArchiveHandler(trigger, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKeys:         a.cfg.Server.APIKeys,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

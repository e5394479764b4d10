package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Vardominator/moltmarket/internal/domain"
	"github.com/Vardominator/moltmarket/internal/indexer"
	"github.com/Vardominator/moltmarket/internal/janitor"
	"github.com/Vardominator/moltmarket/internal/notify"
	"github.com/Vardominator/moltmarket/internal/server"
	"github.com/Vardominator/moltmarket/internal/server/handler"
	"github.com/Vardominator/moltmarket/internal/server/ws"
	"github.com/Vardominator/moltmarket/internal/service"
)

// services bundles the domain services built on top of the wired stores.
type services struct {
	registry *service.RegistryService
	listings *service.ListingService
	escrows  *service.EscrowService
	admin    *service.AdminService
	queries  *service.QueryService
}

// buildServices constructs the service layer from wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	clock := domain.SystemClock()
	return &services{
		registry: service.NewRegistryService(deps.Registry, deps.EventBus, deps.Audit, clock, a.logger),
		listings: service.NewListingService(deps.Listings, deps.LockManager, deps.EventBus, deps.Audit, clock, a.logger),
		escrows:  service.NewEscrowService(deps.Listings, deps.Escrows, deps.Config, deps.Ledger, deps.LockManager, deps.EventBus, deps.Audit, clock, a.logger),
		admin:    service.NewAdminService(deps.Config, deps.EventBus, deps.Audit, clock, a.logger),
		queries:  service.NewQueryService(deps.Listings, deps.Escrows, deps.Ledger, deps.ListingCache, a.logger),
	}
}

// ServeMode runs the HTTP API, the WebSocket hub, and the notification
// dispatcher.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)

	return g.Wait()
}

// IndexerMode runs only the stream projection and archive worker.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting indexer mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIndexer(ctx, g, deps)
	a.startJanitor(ctx, g, deps)

	return g.Wait()
}

// FullMode runs every subsystem: HTTP API, WebSocket hub, notification
// dispatcher, and the indexer.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)
	a.startIndexer(ctx, g, deps)
	a.startJanitor(ctx, g, deps)

	return g.Wait()
}

// StandaloneMode is FullMode on the in-memory backend. The indexer is skipped
// because there is no listing cache to project into.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode; state is not persisted")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)
	a.startJanitor(ctx, g, deps)

	return g.Wait()
}

// startAPI adds the HTTP server, WebSocket hub, and notification dispatcher
// goroutines to the errgroup.
func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	svcs := a.buildServices(deps)

	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	dispatcher := notify.NewDispatcher(deps.EventBus, deps.Notifier, deps.Webhooks, a.logger)
	g.Go(func() error {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by config")
		return
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Registry: handler.NewRegistryHandler(svcs.registry, a.logger),
		Listings: handler.NewListingHandler(svcs.listings, svcs.queries, a.logger),
		Trades:   handler.NewTradeHandler(svcs.escrows, svcs.queries, a.logger),
		Admin:    handler.NewAdminHandler(svcs.admin, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startJanitor adds the scheduled maintenance worker to the errgroup. It
// auto-releases overdue escrows and prunes expired archive objects on the
// configured cron schedule.
func (a *App) startJanitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Janitor.Enabled {
		a.logger.InfoContext(ctx, "janitor disabled by config")
		return
	}

	svcs := a.buildServices(deps)
	j := janitor.New(
		deps.Escrows,
		svcs.escrows,
		deps.BlobReader,
		deps.BlobDeleter,
		a.cfg.Janitor.ArchiveRetentionDays,
		domain.SystemClock(),
		a.logger,
	)
	g.Go(func() error {
		if err := j.RunCron(ctx, a.cfg.Janitor.Cron); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
}

// startIndexer adds the stream projection worker to the errgroup.
func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ix := indexer.New(
		deps.EventBus,
		deps.Listings,
		deps.ListingCache,
		deps.Archiver,
		a.logger,
		indexer.WithPollInterval(a.cfg.Indexer.PollInterval.Duration),
		indexer.WithBatchSize(a.cfg.Indexer.BatchSize),
	)
	g.Go(func() error {
		if err := ix.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
}

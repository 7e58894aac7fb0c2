package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondwizard/internal/server"
	"github.com/alanyoungcy/bondwizard/internal/server/handler"
	"github.com/alanyoungcy/bondwizard/internal/server/ws"
	"github.com/alanyoungcy/bondwizard/internal/service"
)

// ServerMode runs the HTTP API, the WebSocket hub and the wizard session
// janitor.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)
	return g.Wait()
}

// SnapshotMode only refreshes and archives the offering list.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting snapshot mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSnapshots(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API and, when enabled, the snapshot loop in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)
	if a.cfg.RunsSnapshots() {
		a.startSnapshots(ctx, g, deps)
	}
	return g.Wait()
}

func (a *App) services(deps *Dependencies) (*service.WizardService, *service.ActionService, *service.ListingService) {
	tokens := service.NewTokenService(deps.Tokens, deps.TokenCache, a.logger)
	prices := service.NewPriceService(deps.PriceFeed, deps.PriceCache, deps.RateLimiter, deps.SignalBus, service.PriceConfig{
		MaxAge:     a.cfg.PriceFeed.CacheTTL.Duration,
		RateLimit:  a.cfg.PriceFeed.RateLimit,
		RateWindow: a.cfg.PriceFeed.RateWindow.Duration,
	}, a.logger)

	wizards := service.NewWizardService(deps.Wallet, tokens, prices, deps.IssuanceStore, deps.AuditStore, service.WizardConfig{
		BondFactory:      common.HexToAddress(a.cfg.Chain.BondFactory),
		MaxMaturityYears: a.cfg.Wizard.MaxMaturityYears,
		SessionTTL:       a.cfg.Wizard.SessionTTL.Duration,
		LockTTL:          a.cfg.Wizard.LockTTL.Duration,
	}, a.logger).
		WithLocks(deps.LockManager).
		WithEvents(deps.SignalBus, deps.SignalBus)

	actions := service.NewActionService(deps.Wallet, deps.Indexer, tokens, deps.AuditStore, a.logger).
		WithLocks(deps.LockManager, a.cfg.Wizard.LockTTL.Duration).
		WithEvents(deps.SignalBus)

	if deps.Notifier.Enabled() {
		wizards.WithNotifier(deps.Notifier)
		actions.WithNotifier(deps.Notifier)
	}

	listings := service.NewListingService(deps.Indexer, deps.OfferingCache, a.cfg.Indexer.CacheTTL.Duration, a.logger)
	return wizards, actions, listings
}

func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	wizards, actions, listings := a.services(deps)
	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: &handler.StatusHandler{
			Mode:        a.cfg.Mode,
			ChainID:     a.cfg.Chain.ChainID,
			BondFactory: a.cfg.Chain.BondFactory,
			StartedAt:   startedAt,
			Sessions:    wizards.Count,
		},
		Wizards:   handler.NewWizardHandler(wizards, a.logger),
		Offerings: handler.NewOfferingHandler(listings, a.logger),
		Bonds:     handler.NewBondHandler(actions, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return wizards.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.logger.InfoContext(ctx, "HTTP server configured",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("auth", a.cfg.Server.APIKey != ""),
	)
}

func (a *App) startSnapshots(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var archive service.SnapshotArchiver
	if deps.Archive != nil {
		archive = deps.Archive
	}
	snapshots := service.NewSnapshotService(deps.Indexer, deps.OfferingCache, archive, deps.SignalBus, deps.AuditStore,
		service.SnapshotConfig{
			Interval: a.cfg.Snapshot.Interval.Duration,
			Keep:     a.cfg.Snapshot.Keep,
		}, a.logger)

	g.Go(func() error {
		return snapshots.Run(ctx)
	})
}

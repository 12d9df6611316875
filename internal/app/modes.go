package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomex/settle/internal/domain"
	"github.com/outcomex/settle/internal/server"
	"github.com/outcomex/settle/internal/server/handler"
	"github.com/outcomex/settle/internal/server/ws"
)

// ServeMode runs the HTTP API and the WebSocket event feed.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode runs the periodic archival loop without the HTTP API. Useful as
// a standalone worker next to one or more serve processes.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archive == nil {
		return fmt.Errorf("archive mode: archive service not wired")
	}
	return deps.Archive.Run(ctx)
}

// FullMode runs the HTTP API plus the background archival loop in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)

	if deps.Archive != nil {
		g.Go(func() error {
			return deps.Archive.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "archive disabled, running API only")
	}

	return g.Wait()
}

// startServer adds the HTTP server and WebSocket hub goroutines to the given
// errgroup. The server shuts down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	checks := make(map[string]handler.Pinger, len(deps.Health))
	for name, probe := range deps.Health {
		checks[name] = probe
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(checks, a.logger),
		Markets:  handler.NewMarketHandler(deps.Markets, a.logger),
		Clob:     handler.NewClobHandler(deps.Exchange, a.logger),
		Accounts: handler.NewAccountHandler(deps.Ledger, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Verifier, deps.RateLimiter, domain.SystemClock, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

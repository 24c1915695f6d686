// Package app provides the top-level lifecycle for the arenad daemon. It
// wires together storage, caches, blob archival, the settlement service, and
// the HTTP/websocket API, and runs them until shutdown.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soliseum/arenad/internal/config"
	"github.com/soliseum/arenad/internal/consensus"
	"github.com/soliseum/arenad/internal/domain"
	"github.com/soliseum/arenad/internal/server"
	"github.com/soliseum/arenad/internal/server/handler"
	"github.com/soliseum/arenad/internal/server/ws"
	"github.com/soliseum/arenad/internal/service"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the API server, websocket hub, and
// notification relay, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting arenad",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Bool("archival", a.cfg.ArchivalEnabled()),
		slog.Bool("notify", a.cfg.NotifyEnabled()),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	arenaSvc := service.NewArenaService(
		deps.TxRunner,
		deps.LockManager,
		consensus.Secp256k1Verifier{},
		a.logger,
	).
		WithCache(deps.ArenaCache).
		WithSignalBus(deps.SignalBus).
		WithRateLimiter(deps.RateLimiter)
	if deps.Archiver != nil {
		arenaSvc.WithArchiver(deps.Archiver)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Arenas:   handler.NewArenaHandler(arenaSvc, a.logger),
			Stakes:   handler.NewStakeHandler(arenaSvc, a.logger),
			Accounts: handler.NewAccountHandler(arenaSvc, a.logger),
		},
		hub,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.NotifyEnabled() {
		g.Go(func() error {
			return a.notifyLoop(ctx, deps)
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// notifyLoop relays settlement lifecycle events from the signal bus to the
// configured notification channels.
func (a *App) notifyLoop(ctx context.Context, deps *Dependencies) error {
	msgCh, err := deps.SignalBus.Subscribe(ctx, domain.ChannelSettlements)
	if err != nil {
		return fmt.Errorf("app: subscribe settlements: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-msgCh:
			if !ok {
				return nil
			}

			var ev domain.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				a.logger.WarnContext(ctx, "failed to decode settlement event",
					slog.String("error", err.Error()),
				)
				continue
			}

			title, message := describeEvent(ev)
			if err := deps.Notifier.Notify(ctx, ev.Type, title, message); err != nil {
				a.logger.WarnContext(ctx, "notification delivery failed",
					slog.String("event", ev.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// describeEvent renders an event as a notification title and body.
func describeEvent(ev domain.Event) (string, string) {
	switch ev.Type {
	case domain.EventArenaSettled:
		side := "?"
		if ev.Winner != nil {
			side = fmt.Sprintf("%d", *ev.Winner)
		}
		return "Arena settled",
			fmt.Sprintf("Arena %s settled with winning side %s (nonce %d).", ev.ArenaID, side, ev.Nonce)
	case domain.EventArenaReset:
		return "Arena reset",
			fmt.Sprintf("Arena %s was recycled for a new contest (nonce %d).", ev.ArenaID, ev.Nonce)
	case domain.EventOraclesRotated:
		return "Oracle committee rotated",
			fmt.Sprintf("Arena %s has a new oracle committee (nonce %d).", ev.ArenaID, ev.Nonce)
	default:
		return ev.Type, fmt.Sprintf("Arena %s: %s.", ev.ArenaID, ev.Type)
	}
}

// Close tears down all resources in reverse registration order. Safe to
// call multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down arenad")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

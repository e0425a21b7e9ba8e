// Package app wires the configuration into running services: the venue
// adapter, the trading engine, the exit-plan engine, the monitor cycle and
// the HTTP API.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"levex/internal/config"
	"levex/internal/engine"
	"levex/internal/exitplan"
	binancegw "levex/internal/gateway/binance"
	"levex/internal/gateway/notifier"
	"levex/internal/gateway/venue"
	"levex/internal/logger"
	"levex/internal/monitor"
	"levex/internal/store/journal"
	enginehttp "levex/internal/transport/http"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg *config.Config

	venue   *binancegw.Client
	journal *journal.Store
	planDB  *exitplan.Store
	eng     *engine.Engine
	plans   *exitplan.Engine
	mon     *monitor.Monitor
	server  *enginehttp.Server
}

// NewApp builds the full component graph from cfg.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app requires configuration")
	}
	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	client, err := binancegw.New(binancegw.Config{
		APIKey:           cfg.Venue.APIKey,
		APISecret:        cfg.Venue.APISecret,
		RESTBaseURL:      cfg.Venue.RESTBaseURL,
		HTTPTimeout:      time.Duration(cfg.Venue.HTTPTimeoutSec) * time.Second,
		ProxyEnabled:     cfg.Venue.ProxyEnabled,
		RESTProxyURL:     cfg.Venue.RESTProxyURL,
		BreakerThreshold: cfg.Venue.BreakerThreshold,
		BreakerCooldown:  time.Duration(cfg.Venue.BreakerCooldown) * time.Second,
		InstrumentTTL:    time.Duration(cfg.Venue.InstrumentTTLMin) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("venue client: %w", err)
	}

	jnl, err := journal.Open(filepath.Join(cfg.App.DataDir, "journal.db"))
	if err != nil {
		return nil, fmt.Errorf("operation journal: %w", err)
	}

	var notify notifier.TextNotifier = notifier.Noop{}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		notify = notifier.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	}

	eng, err := engine.New(engine.Params{
		Venue:    client,
		Source:   client,
		Journal:  jnl,
		Notifier: notify,
		Settings: engine.Settings{
			MarginMode:        venue.MarginMode(cfg.Trading.MarginMode),
			QuoteAsset:        cfg.Trading.QuoteAsset,
			MarginSafetyLevel: cfg.Trading.MarginSafetyLevel,
			BufferQuote:       cfg.Trading.BufferQuote,
			BufferPct:         cfg.Trading.BufferPct,
			DefaultLeverage:   cfg.Trading.DefaultLeverage,
			DustNotional:      cfg.Trading.DustNotional,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("trading engine: %w", err)
	}

	planDB, err := exitplan.OpenStore(cfg.ExitPlan.StorePath)
	if err != nil {
		return nil, fmt.Errorf("exit plan store: %w", err)
	}

	var registry *exitplan.Registry
	if cfg.ExitPlan.RegistryPath != "" {
		registry, err = exitplan.NewRegistry(cfg.ExitPlan.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("condition registry: %w", err)
		}
	}

	plans, err := exitplan.New(exitplan.Params{
		Source:    client,
		Store:     planDB,
		Registry:  registry,
		Journal:   jnl,
		Timeframe: cfg.ExitPlan.Timeframe,
		Position: func(ctx context.Context, symbol string) (*exitplan.PositionInfo, error) {
			pos, err := eng.Position(ctx, symbol)
			if err != nil {
				return nil, err
			}
			return &exitplan.PositionInfo{
				Symbol:     pos.Symbol,
				Side:       pos.Side,
				Size:       pos.Size,
				EntryPrice: pos.EntryPrice,
			}, nil
		},
		ClosePosition: func(ctx context.Context, symbol string) error {
			_, err := eng.ClosePosition(ctx, symbol, true)
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("exit plan engine: %w", err)
	}

	a := &App{cfg: cfg, venue: client, journal: jnl, planDB: planDB, eng: eng, plans: plans}

	if cfg.Monitor.Enabled {
		a.mon, err = monitor.New(eng, plans, notify, monitor.Config{
			Interval:    time.Duration(cfg.Monitor.IntervalSec) * time.Second,
			AutoProtect: cfg.Monitor.AutoProtect,
		})
		if err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
	}
	if cfg.HTTP.Enabled {
		a.server, err = enginehttp.NewServer(enginehttp.ServerConfig{
			Addr:  cfg.HTTP.Addr,
			Eng:   eng,
			Plans: plans,
		})
		if err != nil {
			return nil, fmt.Errorf("http server: %w", err)
		}
	}
	return a, nil
}

// Run starts the enabled services and blocks until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error { return a.server.Start(gctx) })
	}
	if a.mon != nil {
		g.Go(func() error { return a.mon.Run(gctx) })
	}
	if a.server == nil && a.mon == nil {
		logger.Warnf("no services enabled; exiting after wiring check")
		return a.Close()
	}
	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		logger.Warnf("shutdown: %v", cerr)
	}
	return err
}

// Close releases the storage handles.
func (a *App) Close() error {
	var first error
	if a.planDB != nil {
		if err := a.planDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stockwatch/internal/config"
	"github.com/rickgao/stockwatch/internal/dispatch"
	"github.com/rickgao/stockwatch/internal/engine"
	"github.com/rickgao/stockwatch/internal/history"
	"github.com/rickgao/stockwatch/internal/model"
	"github.com/rickgao/stockwatch/internal/poller"
	"github.com/rickgao/stockwatch/internal/prices"
	"github.com/rickgao/stockwatch/internal/quote"
	"github.com/rickgao/stockwatch/internal/server"
	"github.com/rickgao/stockwatch/internal/store"
	"github.com/rickgao/stockwatch/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/alertd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting alertd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"listen", cfg.Server.Listen,
		"storage", cfg.Storage.Driver,
		"poll_interval", cfg.Poller.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("alertd failed", "error", err)
		os.Exit(1)
	}

	logger.Info("alertd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Open the durable store
	st, pg, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Quote client
	quotes := quote.NewClient(cfg.Quote.BaseURL,
		quote.WithLogger(logger),
		quote.WithTimeout(cfg.Quote.Timeout),
		quote.WithRetries(cfg.Quote.MaxRetries, cfg.Quote.RetryBackoff),
		quote.WithUserAgent(cfg.Quote.UserAgent),
	)

	cache := prices.NewCache()
	dispatcher := dispatch.New(logger)

	eng := engine.New(engine.Config{ConsumeOnFire: cfg.Alerts.ConsumeOnFire}, st, dispatcher, logger)

	handlers := []poller.UpdateHandler{eng}

	// Optional quote history recording (postgres only, enforced by config
	// validation).
	var hist *history.Writer
	if cfg.History.Enabled {
		hist = history.NewWriter(history.Config{
			BatchSize:     cfg.History.BatchSize,
			FlushInterval: cfg.History.FlushInterval,
			BufferSize:    cfg.History.BufferSize,
		}, history.NewPGInserter(pg.Pool()), logger)
		handlers = append(handlers, hist)

		if err := hist.Start(ctx); err != nil {
			return fmt.Errorf("start history writer: %w", err)
		}
	}

	// The polled universe is the configured symbols file plus every symbol
	// that currently has an alert.
	universe, err := quote.LoadSymbols(cfg.Poller.SymbolsFile)
	if err != nil {
		logger.Warn("symbols file not loaded, polling alert symbols only",
			"path", cfg.Poller.SymbolsFile,
			"error", err,
		)
	} else {
		logger.Info("symbol universe loaded",
			"path", cfg.Poller.SymbolsFile,
			"symbols", len(universe),
		)
	}
	symbols := poller.SymbolSourceFunc(func(ctx context.Context) ([]string, error) {
		alertSymbols, err := st.AlertSymbols(ctx)
		if err != nil {
			return nil, err
		}
		return unionSymbols(universe, alertSymbols), nil
	})

	p := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout,
		BackoffBase: cfg.Poller.BackoffBase,
		BackoffMax:  cfg.Poller.BackoffMax,
	}, quotes, symbols, cache, teeHandler(handlers), logger)

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	srv := server.New(server.Config{
		Listen:         cfg.Server.Listen,
		WriteQueueSize: cfg.Server.WriteQueueSize,
	}, st, cache, quotes, dispatcher, logger)

	if err := srv.Start(ctx); err != nil {
		p.Stop(context.Background())
		return fmt.Errorf("start server: %w", err)
	}

	logger.Info("alertd running", "listen", srv.Addr())

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// The server and poller stop concurrently; the history writer goes last
	// so in-flight observations still land.
	var g errgroup.Group
	g.Go(func() error { return srv.Stop(shutdownCtx) })
	g.Go(func() error { return p.Stop(shutdownCtx) })
	if err := g.Wait(); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	if hist != nil {
		if err := hist.Stop(shutdownCtx); err != nil {
			logger.Warn("history writer shutdown incomplete", "error", err)
		}
		stats := hist.Stats()
		logger.Info("history writer totals",
			"written", stats.Written,
			"dropped", stats.Dropped,
			"errors", stats.Errors,
		)
	}

	stats := dispatcher.Stats()
	logger.Info("dispatcher totals",
		"delivered", stats.Delivered,
		"dropped", stats.Dropped,
	)

	return nil
}

// openStore opens the configured backend. The *store.Postgres return is nil
// for the memory driver; it exists so postgres-only components can reach
// the pool.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, *store.Postgres, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage, data will not survive restarts")
		return store.NewMemory(), nil, nil

	case "postgres":
		logger.Info("connecting to database",
			"host", cfg.Storage.Postgres.Host,
			"port", cfg.Storage.Postgres.Port,
			"database", cfg.Storage.Postgres.Name,
		)
		pg, err := store.Connect(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		logger.Info("database connected")
		return pg, pg, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// teeHandler fans one price update out to every handler in order.
type teeHandler []poller.UpdateHandler

func (t teeHandler) HandleUpdate(ctx context.Context, prev model.Quote, hadPrev bool, curr model.Quote) error {
	for _, h := range t {
		if err := h.HandleUpdate(ctx, prev, hadPrev, curr); err != nil {
			return err
		}
	}
	return nil
}

// unionSymbols merges two symbol lists, preserving order and dropping
// duplicates.
func unionSymbols(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

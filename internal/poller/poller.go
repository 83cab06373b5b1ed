package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/stockwatch/internal/model"
	"github.com/rickgao/stockwatch/internal/prices"
)

// SymbolSource provides the symbols to poll each cycle.
type SymbolSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// SymbolSourceFunc is a function adapter for SymbolSource.
type SymbolSourceFunc func(ctx context.Context) ([]string, error)

func (f SymbolSourceFunc) Symbols(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// QuoteFetcher fetches the current price of one symbol.
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbol string) (model.Quote, error)
}

// UpdateHandler receives each successful cache update together with the
// superseded quote.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, prev model.Quote, hadPrev bool, curr model.Quote) error
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll cycle cadence
	Concurrency int           // Max concurrent fetches
	Timeout     time.Duration // Per-fetch timeout
	BackoffBase time.Duration // First per-symbol retry delay after a failure
	BackoffMax  time.Duration // Per-symbol retry delay cap
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 8,
		Timeout:     10 * time.Second,
		BackoffBase: 30 * time.Second,
		BackoffMax:  15 * time.Minute,
	}
}

// Poller periodically refreshes every tracked symbol through the quote
// fetcher and writes the results into the price cache. The cache update
// always happens before the handler runs, so alert evaluation never sees a
// price newer than the cached one.
//
// A failing symbol backs off exponentially on its own; it never blocks the
// rest of the universe, and no fetch failure is fatal to the process.
type Poller struct {
	cfg     Config
	fetcher QuoteFetcher
	symbols SymbolSource
	cache   *prices.Cache
	handler UpdateHandler
	logger  *slog.Logger

	// Per-symbol failure state.
	backoffMu sync.Mutex
	backoff   map[string]*symbolBackoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type symbolBackoff struct {
	failures int
	nextTry  time.Time
}

// New creates a new Poller.
func New(cfg Config, fetcher QuoteFetcher, symbols SymbolSource, cache *prices.Cache, handler UpdateHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		symbols: symbols,
		cache:   cache,
		handler: handler,
		logger:  logger,
		backoff: make(map[string]*symbolBackoff),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("price poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("price poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches quotes for all due symbols concurrently.
func (p *Poller) pollAll() {
	start := time.Now()

	symbols, err := p.symbols.Symbols(p.ctx)
	if err != nil {
		p.logger.Error("failed to resolve symbol universe", "err", err)
		return
	}
	if len(symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, failed, skipped atomic.Int64

	for _, symbol := range symbols {
		if !p.due(symbol, start) {
			skipped.Add(1)
			continue
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollSymbol(symbol); err != nil {
				p.noteFailure(symbol)
				p.logger.Warn("failed to poll symbol",
					"symbol", symbol,
					"err", err,
				)
				failed.Add(1)
				return
			}

			p.clearFailure(symbol)
			fetched.Add(1)
		}(symbol)
	}

	wg.Wait()

	p.logger.Info("poll cycle complete",
		"symbols", len(symbols),
		"fetched", fetched.Load(),
		"failed", failed.Load(),
		"backed_off", skipped.Load(),
		"duration", time.Since(start),
	)
}

// pollSymbol fetches one quote, updates the cache, then hands the update
// to the alert engine.
func (p *Poller) pollSymbol(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	q, err := p.fetcher.Fetch(ctx, symbol)
	if err != nil {
		return err
	}

	prev, hadPrev := p.cache.Put(q)

	if p.handler != nil {
		// The fetch succeeded and the cache is current; an evaluation
		// failure must not back the symbol off.
		if err := p.handler.HandleUpdate(ctx, prev, hadPrev, q); err != nil {
			p.logger.Warn("update handler failed",
				"symbol", symbol,
				"err", err,
			)
		}
	}

	return nil
}

// due reports whether the symbol's backoff window has elapsed.
func (p *Poller) due(symbol string, now time.Time) bool {
	p.backoffMu.Lock()
	defer p.backoffMu.Unlock()

	b, ok := p.backoff[symbol]
	return !ok || !now.Before(b.nextTry)
}

// noteFailure pushes the symbol's next attempt out exponentially.
func (p *Poller) noteFailure(symbol string) {
	p.backoffMu.Lock()
	defer p.backoffMu.Unlock()

	b, ok := p.backoff[symbol]
	if !ok {
		b = &symbolBackoff{}
		p.backoff[symbol] = b
	}

	delay := p.cfg.BackoffBase << b.failures
	if delay > p.cfg.BackoffMax || delay <= 0 {
		delay = p.cfg.BackoffMax
	}
	b.failures++
	b.nextTry = time.Now().Add(delay)
}

// clearFailure resets the symbol's backoff after a success.
func (p *Poller) clearFailure(symbol string) {
	p.backoffMu.Lock()
	defer p.backoffMu.Unlock()
	delete(p.backoff, symbol)
}

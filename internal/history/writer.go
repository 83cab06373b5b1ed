package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/stockwatch/internal/model"
)

// Inserter persists a batch of observed quotes.
type Inserter interface {
	InsertQuotes(ctx context.Context, quotes []model.Quote) error
}

// Config holds history writer settings.
type Config struct {
	BatchSize     int           // Rows per insert
	FlushInterval time.Duration // Max time a row waits in the batch
	BufferSize    int           // Inbound queue capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		BufferSize:    2000,
	}
}

// Metrics contains writer counters.
type Metrics struct {
	Enqueued int64
	Written  int64
	Dropped  int64
	Errors   int64
}

// Writer records every observed quote into durable history in batches.
// Enqueue never blocks the poller: when the inbound queue is full the
// quote is dropped and counted.
type Writer struct {
	cfg    Config
	sink   Inserter
	logger *slog.Logger

	input chan model.Quote

	batchMu sync.Mutex
	batch   []model.Quote
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a history writer.
func NewWriter(cfg Config, sink Inserter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		input:  make(chan model.Quote, cfg.BufferSize),
		batch:  make([]model.Quote, 0, cfg.BatchSize),
	}
}

// HandleUpdate lets the writer sit on the poller's update path.
func (w *Writer) HandleUpdate(_ context.Context, _ model.Quote, _ bool, curr model.Quote) error {
	w.Enqueue(curr)
	return nil
}

// Enqueue hands one quote to the writer without blocking.
func (w *Writer) Enqueue(q model.Quote) {
	select {
	case w.input <- q:
		w.batchMu.Lock()
		w.metrics.Enqueued++
		w.batchMu.Unlock()
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
	}
}

// Start begins consuming and flushing.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("history writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the remainder.
func (w *Writer) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("history writer stopped")
	case <-ctx.Done():
		w.logger.Warn("history writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop accumulates batches and flushes on size.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Drain whatever is queued before exiting.
			for {
				select {
				case q := <-w.input:
					w.append(q)
				default:
					return
				}
			}
		case q := <-w.input:
			if w.append(q) {
				w.flush()
			}
		}
	}
}

// flushLoop flushes on the interval so quiet periods still land.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

// append adds a quote to the batch; true means the batch is full.
func (w *Writer) append(q model.Quote) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, q)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes out the current batch.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Quote, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.sink.InsertQuotes(ctx, batch); err != nil {
		w.logger.Error("failed to write quote history",
			"rows", len(batch),
			"err", err,
		)
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Written += int64(len(batch))
	w.batchMu.Unlock()
}

package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/stockwatch/internal/model"
)

type fakeInserter struct {
	mu      sync.Mutex
	batches [][]model.Quote
}

func (f *fakeInserter) InsertQuotes(_ context.Context, quotes []model.Quote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := append([]model.Quote(nil), quotes...)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeInserter) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	sink := &fakeInserter{}
	cfg := Config{BatchSize: 3, FlushInterval: time.Hour, BufferSize: 16}
	w := NewWriter(cfg, sink, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		w.Enqueue(model.Quote{Symbol: "AAPL", Price: float64(100 + i), ObservedAt: time.Now()})
	}

	deadline := time.Now().Add(time.Second)
	for sink.rows() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("rows = %d, want 3", sink.rows())
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestWriter_FlushesOnInterval(t *testing.T) {
	sink := &fakeInserter{}
	cfg := Config{BatchSize: 1000, FlushInterval: 20 * time.Millisecond, BufferSize: 16}
	w := NewWriter(cfg, sink, nil)

	w.Start(context.Background())
	w.Enqueue(model.Quote{Symbol: "AAPL", Price: 100, ObservedAt: time.Now()})

	deadline := time.Now().Add(time.Second)
	for sink.rows() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("interval flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(stopCtx)
}

func TestWriter_StopFlushesRemainder(t *testing.T) {
	sink := &fakeInserter{}
	cfg := Config{BatchSize: 1000, FlushInterval: time.Hour, BufferSize: 16}
	w := NewWriter(cfg, sink, nil)

	w.Start(context.Background())
	w.Enqueue(model.Quote{Symbol: "AAPL", Price: 100, ObservedAt: time.Now()})
	w.Enqueue(model.Quote{Symbol: "MSFT", Price: 300, ObservedAt: time.Now()})

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := sink.rows(); got != 2 {
		t.Errorf("rows = %d, want 2 after final flush", got)
	}
}

func TestWriter_DropsWhenQueueFull(t *testing.T) {
	sink := &fakeInserter{}
	cfg := Config{BatchSize: 1000, FlushInterval: time.Hour, BufferSize: 1}
	w := NewWriter(cfg, sink, nil)
	// Not started: the queue fills immediately.

	w.Enqueue(model.Quote{Symbol: "AAPL", Price: 1})
	w.Enqueue(model.Quote{Symbol: "AAPL", Price: 2})

	stats := w.Stats()
	if stats.Enqueued != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 1 enqueued 1 dropped", stats)
	}
}

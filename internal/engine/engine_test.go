package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/rickgao/stockwatch/internal/model"
	"github.com/rickgao/stockwatch/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events []model.TriggerEvent
}

func (s *recordingSink) Dispatch(ev model.TriggerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []model.TriggerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TriggerEvent(nil), s.events...)
}

func quote(symbol string, price float64) model.Quote {
	return model.Quote{Symbol: symbol, Price: price}
}

func setup(t *testing.T, consume bool) (*Engine, *store.Memory, *recordingSink, model.User) {
	t.Helper()
	mem := store.NewMemory()
	sink := &recordingSink{}
	eng := New(Config{ConsumeOnFire: consume}, mem, sink, nil)

	u, err := mem.CreateUser(context.Background(), "bob", "digest")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return eng, mem, sink, u
}

func TestEngine_AboveCrossingFiresOnce(t *testing.T) {
	ctx := context.Background()
	eng, mem, sink, u := setup(t, false)

	mem.UpsertAlert(ctx, model.Alert{UserID: u.ID, Symbol: "AAPL", Direction: model.Above, Threshold: 150})

	// 149 -> 151 crosses.
	if err := eng.HandleUpdate(ctx, quote("AAPL", 149), true, quote("AAPL", 151)); err != nil {
		t.Fatalf("HandleUpdate failed: %v", err)
	}

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.UserID != u.ID || ev.Symbol != "AAPL" || ev.Direction != model.Above || ev.Threshold != 150 || ev.Price != 151 {
		t.Errorf("event = %+v", ev)
	}

	// Still above: 151 -> 152 must not fire again (edge-triggered).
	eng.HandleUpdate(ctx, quote("AAPL", 151), true, quote("AAPL", 152))
	if got := len(sink.all()); got != 1 {
		t.Errorf("len(events) = %d after level move, want 1", got)
	}

	// Fresh crossing after dipping below fires again (alert persists).
	eng.HandleUpdate(ctx, quote("AAPL", 152), true, quote("AAPL", 148))
	eng.HandleUpdate(ctx, quote("AAPL", 148), true, quote("AAPL", 150))
	if got := len(sink.all()); got != 2 {
		t.Errorf("len(events) = %d after re-crossing, want 2", got)
	}
}

func TestEngine_BelowCrossing(t *testing.T) {
	ctx := context.Background()
	eng, mem, sink, u := setup(t, false)

	mem.UpsertAlert(ctx, model.Alert{UserID: u.ID, Symbol: "AAPL", Direction: model.Below, Threshold: 100})

	// Above threshold, no fire.
	eng.HandleUpdate(ctx, quote("AAPL", 105), true, quote("AAPL", 101))
	if got := len(sink.all()); got != 0 {
		t.Fatalf("len(events) = %d, want 0", got)
	}

	// 101 -> 99 crosses downward.
	eng.HandleUpdate(ctx, quote("AAPL", 101), true, quote("AAPL", 99))
	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Direction != model.Below || events[0].Price != 99 {
		t.Errorf("event = %+v", events[0])
	}
}

func TestEngine_ExactThresholdFires(t *testing.T) {
	ctx := context.Background()
	eng, mem, sink, u := setup(t, false)

	mem.UpsertAlert(ctx, model.Alert{UserID: u.ID, Symbol: "AAPL", Direction: model.Above, Threshold: 150})

	// price == threshold counts as reached.
	eng.HandleUpdate(ctx, quote("AAPL", 149.99), true, quote("AAPL", 150))
	if got := len(sink.all()); got != 1 {
		t.Errorf("len(events) = %d, want 1", got)
	}
}

func TestEngine_FirstObservationNeverFires(t *testing.T) {
	ctx := context.Background()
	eng, mem, sink, u := setup(t, false)

	mem.UpsertAlert(ctx, model.Alert{UserID: u.ID, Symbol: "AAPL", Direction: model.Above, Threshold: 150})

	// No previous observation, no edge.
	eng.HandleUpdate(ctx, model.Quote{}, false, quote("AAPL", 200))
	if got := len(sink.all()); got != 0 {
		t.Errorf("len(events) = %d, want 0", got)
	}
}

func TestEngine_ConsumeOnFire(t *testing.T) {
	ctx := context.Background()
	eng, mem, sink, u := setup(t, true)

	mem.UpsertAlert(ctx, model.Alert{UserID: u.ID, Symbol: "AAPL", Direction: model.Above, Threshold: 150})

	eng.HandleUpdate(ctx, quote("AAPL", 149), true, quote("AAPL", 151))
	if got := len(sink.all()); got != 1 {
		t.Fatalf("len(events) = %d, want 1", got)
	}

	alerts, _ := mem.AlertsByUser(ctx, u.ID)
	if len(alerts) != 0 {
		t.Errorf("alert should be consumed, still have %+v", alerts)
	}

	// Re-crossing fires nothing once consumed.
	eng.HandleUpdate(ctx, quote("AAPL", 151), true, quote("AAPL", 148))
	eng.HandleUpdate(ctx, quote("AAPL", 148), true, quote("AAPL", 152))
	if got := len(sink.all()); got != 1 {
		t.Errorf("len(events) = %d, want 1", got)
	}
}

func TestEngine_MultipleUsersSameSymbol(t *testing.T) {
	ctx := context.Background()
	eng, mem, sink, u := setup(t, false)

	other, _ := mem.CreateUser(ctx, "alice", "digest")

	mem.UpsertAlert(ctx, model.Alert{UserID: u.ID, Symbol: "AAPL", Direction: model.Above, Threshold: 150})
	mem.UpsertAlert(ctx, model.Alert{UserID: other.ID, Symbol: "AAPL", Direction: model.Above, Threshold: 151})
	mem.UpsertAlert(ctx, model.Alert{UserID: other.ID, Symbol: "AAPL", Direction: model.Below, Threshold: 50})

	eng.HandleUpdate(ctx, quote("AAPL", 149), true, quote("AAPL", 152))

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}

	users := map[int64]bool{}
	for _, ev := range events {
		users[ev.UserID] = true
		if ev.Direction != model.Above {
			t.Errorf("unexpected direction %q", ev.Direction)
		}
	}
	if !users[u.ID] || !users[other.ID] {
		t.Errorf("events = %+v, want one per user", events)
	}
}

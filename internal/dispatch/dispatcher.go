package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/stockwatch/internal/model"
)

// Subscriber is one live session's inbox for trigger events.
type Subscriber interface {
	// Deliver enqueues the event without blocking. It returns false when
	// the event was dropped (queue full or session closing).
	Deliver(ev model.TriggerEvent) bool
}

// Stats contains delivery counters.
type Stats struct {
	Delivered int64
	Dropped   int64
}

// Dispatcher routes trigger events to the sessions currently authenticated
// as the owning user. Delivery is at-most-once and best-effort: an event
// for a user with no live session is dropped, and a session with a full
// queue misses the event rather than stalling the engine. Multiple sessions
// of the same user all receive the event.
type Dispatcher struct {
	mu       sync.RWMutex
	sessions map[int64]map[Subscriber]struct{}

	logger *slog.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

// New creates a Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sessions: make(map[int64]map[Subscriber]struct{}),
		logger:   logger,
	}
}

// Register announces a session authenticated as userID. A session
// re-authenticating as another user must deregister its old registration
// itself.
func (d *Dispatcher) Register(userID int64, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.sessions[userID]
	if !ok {
		set = make(map[Subscriber]struct{})
		d.sessions[userID] = set
	}
	set[sub] = struct{}{}
}

// Deregister removes a session registration. Safe to call when the
// session was never registered.
func (d *Dispatcher) Deregister(userID int64, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.sessions[userID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(d.sessions, userID)
	}
}

// Dispatch routes one trigger event. Implements the engine's TriggerSink.
func (d *Dispatcher) Dispatch(ev model.TriggerEvent) {
	d.mu.RLock()
	subs := make([]Subscriber, 0, len(d.sessions[ev.UserID]))
	for sub := range d.sessions[ev.UserID] {
		subs = append(subs, sub)
	}
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.dropped.Add(1)
		d.logger.Debug("dropping trigger for offline user",
			"user_id", ev.UserID,
			"symbol", ev.Symbol,
		)
		return
	}

	for _, sub := range subs {
		if sub.Deliver(ev) {
			d.delivered.Add(1)
		} else {
			d.dropped.Add(1)
			d.logger.Warn("trigger dropped by session",
				"user_id", ev.UserID,
				"symbol", ev.Symbol,
			)
		}
	}
}

// Sessions returns the number of registrations for userID.
func (d *Dispatcher) Sessions(userID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions[userID])
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}

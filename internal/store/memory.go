package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rickgao/stockwatch/internal/model"
)

// Memory is an in-process Store. It backs unit tests and the
// "storage.driver: memory" mode for local runs; nothing survives a restart.
type Memory struct {
	mu sync.Mutex

	nextUserID  int64
	nextAlertID int64

	users     map[int64]model.User
	usernames map[string]int64 // username -> user ID
	alerts    map[int64]model.Alert
	positions map[positionKey]model.Position
}

type positionKey struct {
	userID int64
	symbol string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nextUserID:  1,
		nextAlertID: 1,
		users:       make(map[int64]model.User),
		usernames:   make(map[string]int64),
		alerts:      make(map[int64]model.Alert),
		positions:   make(map[positionKey]model.Position),
	}
}

func (m *Memory) CreateUser(_ context.Context, username, passwordDigest string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.usernames[username]; taken {
		return model.User{}, ErrDuplicateUsername
	}

	u := model.User{
		ID:             m.nextUserID,
		Username:       username,
		PasswordDigest: passwordDigest,
	}
	m.nextUserID++
	m.users[u.ID] = u
	m.usernames[username] = u.ID
	return u, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.usernames[username]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) DeleteUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	delete(m.users, userID)
	delete(m.usernames, u.Username)

	// Cascade.
	for id, a := range m.alerts {
		if a.UserID == userID {
			delete(m.alerts, id)
		}
	}
	for key := range m.positions {
		if key.userID == userID {
			delete(m.positions, key)
		}
	}
	return nil
}

func (m *Memory) UpsertAlert(_ context.Context, alert model.Alert) (model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Replace = delete + create.
	for id, a := range m.alerts {
		if a.UserID == alert.UserID && a.Symbol == alert.Symbol && a.Direction == alert.Direction {
			delete(m.alerts, id)
		}
	}

	alert.ID = m.nextAlertID
	m.nextAlertID++
	m.alerts[alert.ID] = alert
	return alert, nil
}

func (m *Memory) DeleteAlert(_ context.Context, userID int64, symbol string, direction model.Direction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, a := range m.alerts {
		if a.UserID == userID && a.Symbol == symbol && a.Direction == direction {
			delete(m.alerts, id)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) DeleteAlertsForSymbol(_ context.Context, userID int64, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := false
	for id, a := range m.alerts {
		if a.UserID == userID && a.Symbol == symbol {
			delete(m.alerts, id)
			deleted = true
		}
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) DeleteAlertByID(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[id]; !ok {
		return ErrNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *Memory) AlertsByUser(_ context.Context, userID int64) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Alert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out, nil
}

func (m *Memory) AlertsBySymbol(_ context.Context, symbol string) ([]model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Alert
	for _, a := range m.alerts {
		if a.Symbol == symbol {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out, nil
}

func (m *Memory) AlertSymbols(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, a := range m.alerts {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			out = append(out, a.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AdjustPosition(_ context.Context, userID int64, symbol string, qtyDelta int64, price float64) (model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := positionKey{userID: userID, symbol: symbol}
	pos, ok := m.positions[key]

	if qtyDelta > 0 {
		if !ok {
			pos = model.Position{UserID: userID, Symbol: symbol}
		}
		pos.Quantity += qtyDelta
		pos.TotalSpent += float64(qtyDelta) * price
		m.positions[key] = pos
		return pos, nil
	}

	sell := -qtyDelta
	if !ok {
		return model.Position{}, ErrNotFound
	}
	if pos.Quantity < sell {
		return model.Position{}, ErrInsufficientQuantity
	}

	// Reduce cost basis proportionally to the quantity sold.
	pos.TotalSpent -= pos.TotalSpent * float64(sell) / float64(pos.Quantity)
	pos.Quantity -= sell
	m.positions[key] = pos
	return pos, nil
}

func (m *Memory) PositionsByUser(_ context.Context, userID int64) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Position
	for key, p := range m.positions {
		if key.userID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *Memory) Close() {}

func sortAlerts(alerts []model.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Symbol != alerts[j].Symbol {
			return alerts[i].Symbol < alerts[j].Symbol
		}
		return alerts[i].Direction < alerts[j].Direction
	})
}

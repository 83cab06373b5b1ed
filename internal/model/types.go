package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// User is a registered account.
type User struct {
	ID             int64  // Primary key (server-assigned)
	Username       string // Unique, case-sensitive
	PasswordDigest string // Opaque digest, never the plaintext password
}

// Direction says which way a price must cross an alert threshold.
type Direction string

const (
	// Above fires when the price rises to or past the threshold.
	Above Direction = "Above"
	// Below fires when the price falls to or past the threshold.
	Below Direction = "Below"
)

// ParseDirection converts a wire token to a Direction. Tokens are matched
// case-insensitively; ok is false for anything else.
func ParseDirection(token string) (Direction, bool) {
	switch strings.ToLower(token) {
	case "above":
		return Above, true
	case "below":
		return Below, true
	default:
		return "", false
	}
}

// Alert is a user's standing request to be notified when a symbol's price
// crosses a threshold. At most one active alert exists per
// (user, symbol, direction); adding another replaces it.
type Alert struct {
	ID        int64
	UserID    int64     // Owner
	Symbol    string    // Ticker symbol (e.g., "AAPL")
	Direction Direction // Above or Below
	Threshold float64   // Crossing price
}

// Position is a user's aggregate holding in one symbol.
// Quantity never goes negative; it may reach zero but the row is kept.
type Position struct {
	UserID     int64
	Symbol     string
	Quantity   int64   // Shares held
	TotalSpent float64 // Cumulative cost basis
}

// -----------------------------------------------------------------------------
// In-Memory Types
// -----------------------------------------------------------------------------

// Quote is the latest observed price for a symbol. Cache entries are
// overwritten on every successful poll, never evicted.
type Quote struct {
	Symbol     string
	Price      float64
	ObservedAt time.Time
}

// TriggerEvent is emitted when a price crossing matches an alert.
type TriggerEvent struct {
	UserID    int64
	Symbol    string
	Direction Direction
	Threshold float64
	Price     float64 // The price that crossed the threshold
}

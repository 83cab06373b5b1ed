package store

import (
	"context"
	"errors"

	"github.com/rickgao/stockwatch/internal/model"
)

// Store errors. Implementations map their native failures onto these so
// callers can branch without knowing the backend.
var (
	// ErrNotFound is returned when a user, alert, or position does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateUsername is returned when registering an existing username.
	ErrDuplicateUsername = errors.New("store: username already taken")
	// ErrInsufficientQuantity is returned when a sell exceeds the held quantity.
	ErrInsufficientQuantity = errors.New("store: insufficient quantity")
	// ErrConflict is returned when a concurrent update collides; callers may
	// retry a bounded number of times.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// Store is the durable persistence port for users, alerts, and positions.
//
// Implementations must serialize conflicting writes to the same logical
// record: AdjustPosition in particular is a single atomic read-modify-write
// per (user, symbol) so concurrent buys never lose an update.
type Store interface {
	// CreateUser inserts a new user. Returns ErrDuplicateUsername when the
	// username is taken.
	CreateUser(ctx context.Context, username, passwordDigest string) (model.User, error)

	// UserByUsername looks a user up by exact (case-sensitive) username.
	UserByUsername(ctx context.Context, username string) (model.User, error)

	// DeleteUser removes a user and cascades to their alerts and positions.
	DeleteUser(ctx context.Context, userID int64) error

	// UpsertAlert creates an alert, replacing any existing alert with the
	// same (user, symbol, direction). Returns the stored alert with its ID.
	UpsertAlert(ctx context.Context, alert model.Alert) (model.Alert, error)

	// DeleteAlert removes the user's alert on (symbol, direction).
	// Returns ErrNotFound when no such alert exists.
	DeleteAlert(ctx context.Context, userID int64, symbol string, direction model.Direction) error

	// DeleteAlertsForSymbol removes all of the user's alerts on symbol.
	// Returns ErrNotFound when none exist.
	DeleteAlertsForSymbol(ctx context.Context, userID int64, symbol string) error

	// DeleteAlertByID removes one alert by primary key. Used when a fired
	// alert is configured to be consumed.
	DeleteAlertByID(ctx context.Context, id int64) error

	// AlertsByUser returns all of the user's alerts.
	AlertsByUser(ctx context.Context, userID int64) ([]model.Alert, error)

	// AlertsBySymbol returns every user's alerts on symbol.
	AlertsBySymbol(ctx context.Context, symbol string) ([]model.Alert, error)

	// AlertSymbols returns the distinct symbols that have at least one
	// active alert. The poller unions these with the configured universe.
	AlertSymbols(ctx context.Context) ([]string, error)

	// AdjustPosition applies a buy (qtyDelta > 0) or sell (qtyDelta < 0) at
	// the given price and returns the resulting position. Buys add
	// qtyDelta*price to the cost basis; sells reduce the cost basis
	// proportionally. Returns ErrInsufficientQuantity when a sell would take
	// the quantity negative and ErrNotFound when selling with no position.
	AdjustPosition(ctx context.Context, userID int64, symbol string, qtyDelta int64, price float64) (model.Position, error)

	// PositionsByUser returns all of the user's positions, including
	// zero-quantity ones.
	PositionsByUser(ctx context.Context, userID int64) ([]model.Position, error)

	// Close releases the underlying resources.
	Close()
}

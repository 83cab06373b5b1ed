package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/stockwatch/internal/config"
	"github.com/rickgao/stockwatch/internal/model"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// schema is applied on startup. Idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id              BIGSERIAL PRIMARY KEY,
	username        TEXT NOT NULL UNIQUE,
	password_digest TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id        BIGSERIAL PRIMARY KEY,
	user_id   BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	symbol    TEXT NOT NULL,
	direction TEXT NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	UNIQUE (user_id, symbol, direction)
);

CREATE INDEX IF NOT EXISTS alerts_symbol_idx ON alerts (symbol);

CREATE TABLE IF NOT EXISTS positions (
	user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	symbol      TEXT NOT NULL,
	quantity    BIGINT NOT NULL CHECK (quantity >= 0),
	total_spent DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS quote_history (
	symbol      TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS quote_history_symbol_idx ON quote_history (symbol, observed_at);
`

// Postgres is the durable Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for auxiliary writers.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordDigest string) (model.User, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_digest) VALUES ($1, $2) RETURNING id`,
		username, passwordDigest,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.User{}, ErrDuplicateUsername
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return model.User{ID: id, Username: username, PasswordDigest: passwordDigest}, nil
}

func (p *Postgres) UserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, password_digest FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordDigest)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (p *Postgres) DeleteUser(ctx context.Context, userID int64) error {
	// Alerts and positions cascade via foreign keys.
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpsertAlert(ctx context.Context, alert model.Alert) (model.Alert, error) {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO alerts (user_id, symbol, direction, threshold)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, symbol, direction)
		 DO UPDATE SET threshold = EXCLUDED.threshold
		 RETURNING id`,
		alert.UserID, alert.Symbol, string(alert.Direction), alert.Threshold,
	).Scan(&alert.ID)
	if err != nil {
		return model.Alert{}, fmt.Errorf("upsert alert: %w", err)
	}
	return alert, nil
}

func (p *Postgres) DeleteAlert(ctx context.Context, userID int64, symbol string, direction model.Direction) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM alerts WHERE user_id = $1 AND symbol = $2 AND direction = $3`,
		userID, symbol, string(direction),
	)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteAlertsForSymbol(ctx context.Context, userID int64, symbol string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM alerts WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	)
	if err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteAlertByID(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert by id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AlertsByUser(ctx context.Context, userID int64) ([]model.Alert, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, user_id, symbol, direction, threshold
		 FROM alerts WHERE user_id = $1 ORDER BY symbol, direction`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts by user: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (p *Postgres) AlertsBySymbol(ctx context.Context, symbol string) ([]model.Alert, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, user_id, symbol, direction, threshold
		 FROM alerts WHERE symbol = $1 ORDER BY user_id, direction`,
		symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts by symbol: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (p *Postgres) AlertSymbols(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT symbol FROM alerts ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query alert symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) AdjustPosition(ctx context.Context, userID int64, symbol string, qtyDelta int64, price float64) (model.Position, error) {
	pos := model.Position{UserID: userID, Symbol: symbol}

	if qtyDelta > 0 {
		spent := float64(qtyDelta) * price
		err := p.pool.QueryRow(ctx,
			`INSERT INTO positions (user_id, symbol, quantity, total_spent)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, symbol)
			 DO UPDATE SET quantity    = positions.quantity + EXCLUDED.quantity,
			               total_spent = positions.total_spent + EXCLUDED.total_spent
			 RETURNING quantity, total_spent`,
			userID, symbol, qtyDelta, spent,
		).Scan(&pos.Quantity, &pos.TotalSpent)
		if err != nil {
			return model.Position{}, fmt.Errorf("adjust position (buy): %w", err)
		}
		return pos, nil
	}

	// Sell: a single UPDATE evaluates all SET expressions against the old
	// row, so the proportional cost-basis reduction and the quantity guard
	// are atomic per (user, symbol).
	sell := -qtyDelta
	err := p.pool.QueryRow(ctx,
		`UPDATE positions
		 SET total_spent = total_spent - total_spent * $3::float8 / quantity,
		     quantity    = quantity - $3
		 WHERE user_id = $1 AND symbol = $2 AND quantity >= $3
		 RETURNING quantity, total_spent`,
		userID, symbol, sell,
	).Scan(&pos.Quantity, &pos.TotalSpent)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either no position or not enough shares; look once to tell apart.
		var held int64
		checkErr := p.pool.QueryRow(ctx,
			`SELECT quantity FROM positions WHERE user_id = $1 AND symbol = $2`,
			userID, symbol,
		).Scan(&held)
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return model.Position{}, ErrNotFound
		}
		if checkErr != nil {
			return model.Position{}, fmt.Errorf("check position: %w", checkErr)
		}
		return model.Position{}, ErrInsufficientQuantity
	}
	if err != nil {
		return model.Position{}, fmt.Errorf("adjust position (sell): %w", err)
	}
	return pos, nil
}

func (p *Postgres) PositionsByUser(ctx context.Context, userID int64) ([]model.Position, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_id, symbol, quantity, total_spent
		 FROM positions WHERE user_id = $1 ORDER BY symbol`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var pos model.Position
		if err := rows.Scan(&pos.UserID, &pos.Symbol, &pos.Quantity, &pos.TotalSpent); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func scanAlerts(rows pgx.Rows) ([]model.Alert, error) {
	var out []model.Alert
	for rows.Next() {
		var (
			a   model.Alert
			dir string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Symbol, &dir, &a.Threshold); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Direction = model.Direction(dir)
		out = append(out, a)
	}
	return out, rows.Err()
}

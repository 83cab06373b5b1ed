package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/stockwatch/internal/model"
)

// PGInserter bulk-inserts quote history rows with COPY.
type PGInserter struct {
	pool *pgxpool.Pool
}

// NewPGInserter creates an Inserter over the given pool.
func NewPGInserter(pool *pgxpool.Pool) *PGInserter {
	return &PGInserter{pool: pool}
}

func (i *PGInserter) InsertQuotes(ctx context.Context, quotes []model.Quote) error {
	rows := make([][]any, len(quotes))
	for n, q := range quotes {
		rows[n] = []any{q.Symbol, q.Price, q.ObservedAt}
	}

	_, err := i.pool.CopyFrom(ctx,
		pgx.Identifier{"quote_history"},
		[]string{"symbol", "price", "observed_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy quote history: %w", err)
	}
	return nil
}

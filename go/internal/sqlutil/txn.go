package sqlutil

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TxStarter is satisfied by *pgxpool.Pool, *pgx.Conn and pgxmock pools.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Run executes fn inside a pgx transaction.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db TxStarter,
	newQueries func(pgx.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.Begin(ctx) // BEGIN
	if err != nil {
		return err
	}
	q := newQueries(tx) // bind queries to this tx
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx) // ROLLBACK
		return err
	}
	return tx.Commit(ctx) // COMMIT
}
